package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/logger"
	"tablegames/internal/store"
)

var ErrNotFound = errors.New("match not found")

// Collection is the top-level document collection holding matches.
const Collection = "games"

// MatchRepository maps matches onto games/{id} in the shared document and
// commits engine patches under the match's version token.
type MatchRepository struct {
	doc store.Document
	now func() time.Time
}

func NewMatchRepository(doc store.Document) *MatchRepository {
	return &MatchRepository{doc: doc, now: time.Now}
}

// WithClock replaces the clock used to stamp lastUpdated.
func (r *MatchRepository) WithClock(now func() time.Time) *MatchRepository {
	r.now = now
	return r
}

// Path returns the document path of a match, or of a field inside it.
func Path(id string, rel ...string) string {
	segs := append([]string{Collection, id}, rel...)
	return store.Join(segs...)
}

func (r *MatchRepository) Create(ctx context.Context, m *domain.Match) error {
	if err := r.doc.Set(ctx, Path(m.ID), m); err != nil {
		return fmt.Errorf("create match %s: %w", m.ID, err)
	}
	return nil
}

func decode(id string, v any) (*domain.Match, error) {
	if v == nil {
		return nil, ErrNotFound
	}
	var m domain.Match
	if err := store.Decode(v, &m); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", id, err)
	}
	if m.Players == nil {
		m.Players = map[string]*domain.Player{}
	}
	for name, p := range m.Players {
		if p.Name == "" {
			p.Name = name
		}
	}
	return &m, nil
}

func (r *MatchRepository) Get(ctx context.Context, id string) (*domain.Match, error) {
	v, err := r.doc.Get(ctx, Path(id))
	if err != nil {
		return nil, fmt.Errorf("get match %s: %w", id, err)
	}
	return decode(id, v)
}

// Commit applies patch atomically if nobody wrote since m was read.
// A lost race returns store.ErrVersionConflict and nothing is written.
// A status change must follow waiting -> active -> completed.
func (r *MatchRepository) Commit(ctx context.Context, m *domain.Match, patch game.Patch) (int64, error) {
	if v, ok := patch["status"]; ok {
		next, _ := v.(domain.Status)
		if s, isStr := v.(string); isStr {
			next = domain.Status(s)
		}
		if next != m.Status && !m.Status.CanTransition(next) {
			return 0, fmt.Errorf("match %s: %s -> %q: %w", m.ID, m.Status, next, game.ErrWrongStatus)
		}
	}
	full := make(map[string]any, len(patch)+1)
	for rel, v := range patch {
		full[Path(m.ID, rel)] = v
	}
	stamp := r.now().UnixMilli()
	if stamp <= m.LastUpdated {
		stamp = m.LastUpdated + 1
	}
	full[Path(m.ID, "lastUpdated")] = stamp

	next, err := r.doc.UpdateIf(ctx, Path(m.ID), m.Version, full)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *MatchRepository) Delete(ctx context.Context, id string) error {
	if err := r.doc.Set(ctx, Path(id), nil); err != nil {
		return fmt.Errorf("delete match %s: %w", id, err)
	}
	return nil
}

func (r *MatchRepository) List(ctx context.Context) ([]string, error) {
	return r.doc.List(ctx, Collection)
}

// Watch calls fn with every new snapshot. fn(nil) means the match is gone.
func (r *MatchRepository) Watch(ctx context.Context, id string, fn func(*domain.Match)) (func(), error) {
	return r.doc.Subscribe(ctx, Path(id), func(v any) {
		if v == nil {
			fn(nil)
			return
		}
		m, err := decode(id, v)
		if err != nil {
			logger.Warn("watch: bad snapshot", "match", id, "error", err)
			return
		}
		fn(m)
	})
}
