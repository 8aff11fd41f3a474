package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tablegames/internal/domain"
	"tablegames/internal/game"
	"tablegames/internal/logger"
	"tablegames/internal/repository"
	"tablegames/internal/scheduler"
	"tablegames/internal/session"
	"tablegames/internal/store"

	"github.com/google/uuid"
)

const DefaultCommitAttempts = 5

var (
	// ErrBusy means every commit attempt lost a race. Safe to retry.
	ErrBusy = errors.New("match is busy, try again")
	// ErrIDExhausted means no free match id was found.
	ErrIDExhausted = errors.New("could not allocate match id")
)

type Options struct {
	Attempts int
	Now      func() time.Time
	NewID    func() string
}

// MatchService is the only writer of match documents. Every change is
// read -> decide -> commit under the version read, retried on conflict.
type MatchService struct {
	repo     *repository.MatchRepository
	engines  *game.Factory
	timers   scheduler.Scheduler
	attempts int
	now      func() time.Time
	newID    func() string
}

func NewMatchService(repo *repository.MatchRepository, engines *game.Factory, timers scheduler.Scheduler, opts Options) *MatchService {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultCommitAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		}
	}
	return &MatchService{
		repo:     repo,
		engines:  engines,
		timers:   timers,
		attempts: opts.Attempts,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// Result is the committed state after an operation plus anything the engine
// wanted to report (a flip result, a settled trade).
type Result struct {
	Match  *domain.Match `json:"match"`
	Result any           `json:"result,omitempty"`
}

// Create opens a lobby with host as its first player.
func (s *MatchService) Create(ctx context.Context, gameType domain.GameType, host string, settings *domain.SettingsPatch) (*domain.Match, error) {
	for i := 0; i < 3; i++ {
		id := s.newID()
		m, err := session.NewMatch(id, gameType, host, settings, s.now())
		if err != nil {
			return nil, err
		}
		if _, err := s.repo.Get(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if err := s.repo.Create(ctx, m); err != nil {
			return nil, err
		}
		logger.Info("match created", "match", id, "game", gameType, "player", m.Host())
		return s.repo.Get(ctx, id)
	}
	return nil, ErrIDExhausted
}

func (s *MatchService) Get(ctx context.Context, id string) (*domain.Match, error) {
	return s.repo.Get(ctx, id)
}

// Join seats name and returns the fresh match plus the seated name.
func (s *MatchService) Join(ctx context.Context, id, name string) (*domain.Match, string, error) {
	var seated string
	m, _, err := s.mutate(ctx, id, "join", func(m *domain.Match) (*game.Outcome, error) {
		patch, p, err := session.Join(m, name, s.now())
		if err != nil {
			return nil, err
		}
		seated = p.Name
		return &game.Outcome{Patch: patch}, nil
	})
	if err != nil {
		return nil, "", err
	}
	logger.Info("player joined", "match", id, "player", seated)
	return m, seated, nil
}

// Leave marks name as gone. During play the engine decides what that costs
// (a forfeit in rps, lost dice in liars-dice). A non-zero joinedAt must match
// the seating the caller's token was issued for.
func (s *MatchService) Leave(ctx context.Context, id, name string, joinedAt int64) (*domain.Match, error) {
	m, _, err := s.mutate(ctx, id, game.ActionLeave, func(m *domain.Match) (*game.Outcome, error) {
		if err := session.CheckSeat(m, name, joinedAt); err != nil {
			return nil, err
		}
		if m.Status != domain.StatusActive {
			patch, err := session.Leave(m, name)
			if err != nil {
				return nil, err
			}
			return &game.Outcome{Patch: patch}, nil
		}
		eng, err := s.engines.Engine(m.GameType)
		if err != nil {
			return nil, err
		}
		return eng.Apply(m, game.Action{Type: game.ActionLeave, Player: name})
	})
	if err != nil {
		return nil, err
	}
	logger.Info("player left", "match", id, "player", name)
	return m, nil
}

func (s *MatchService) UpdateSettings(ctx context.Context, id, actor string, joinedAt int64, settings domain.SettingsPatch) (*domain.Match, error) {
	m, _, err := s.mutate(ctx, id, "settings", func(m *domain.Match) (*game.Outcome, error) {
		if err := session.CheckSeat(m, actor, joinedAt); err != nil {
			return nil, err
		}
		patch, err := session.UpdateSettings(m, actor, settings)
		if err != nil {
			return nil, err
		}
		return &game.Outcome{Patch: patch}, nil
	})
	return m, err
}

// Act runs a player action. System actions from outside are refused by the
// engines because a.System never survives decoding. A leave goes through Leave
// so a waiting lobby frees the seat.
func (s *MatchService) Act(ctx context.Context, id string, a game.Action) (*Result, error) {
	if a.Type == game.ActionLeave && !a.System {
		m, err := s.Leave(ctx, id, a.Player, a.JoinedAt)
		if err != nil {
			return nil, err
		}
		return &Result{Match: m}, nil
	}
	m, out, err := s.apply(ctx, id, a)
	if err != nil {
		return nil, err
	}
	res := &Result{Match: m, Result: out.Result}
	if out.FollowUp != nil {
		if fm, _, ferr := s.apply(ctx, id, *out.FollowUp); ferr == nil {
			res.Match = fm
		} else if !game.IsRejection(ferr) {
			logger.Warn("follow-up failed", "match", id, "action", out.FollowUp.Type, "error", ferr)
		}
	}
	return res, nil
}

// Fire delivers a scheduled action. Stale firings are rejected by the engine
// guards and dropped here.
func (s *MatchService) Fire(ctx context.Context, job scheduler.Job) {
	a := job.Action
	a.System = true
	TimersFired.WithLabelValues(a.Type).Inc()

	_, out, err := s.apply(ctx, job.MatchID, a)
	switch {
	case err == nil:
		if out.FollowUp != nil {
			if _, _, ferr := s.apply(ctx, job.MatchID, *out.FollowUp); ferr != nil && !game.IsRejection(ferr) {
				logger.Warn("follow-up failed", "match", job.MatchID, "action", out.FollowUp.Type, "error", ferr)
			}
		}
	case game.IsRejection(err), errors.Is(err, repository.ErrNotFound):
		logger.Debug("timer dropped", "match", job.MatchID, "action", a.Type, "error", err)
	default:
		logger.Error("timer failed", "match", job.MatchID, "action", a.Type, "error", err)
	}
}

func (s *MatchService) apply(ctx context.Context, id string, a game.Action) (*domain.Match, *game.Outcome, error) {
	return s.mutate(ctx, id, a.Type, func(m *domain.Match) (*game.Outcome, error) {
		if a.Player != "" && !a.System {
			if err := session.CheckSeat(m, a.Player, a.JoinedAt); err != nil {
				return nil, err
			}
		}
		eng, err := s.engines.Engine(m.GameType)
		if err != nil {
			return nil, err
		}
		return eng.Apply(m, a)
	})
}

// mutate is the commit loop shared by every write.
func (s *MatchService) mutate(ctx context.Context, id, action string, decide func(*domain.Match) (*game.Outcome, error)) (*domain.Match, *game.Outcome, error) {
	gameLabel := "unknown"
	log := logger.ForMatch(id, "action", action)
	for attempt := 0; attempt < s.attempts; attempt++ {
		m, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		gameLabel = string(m.GameType)

		out, err := decide(m)
		if err != nil {
			if game.IsRejection(err) {
				GameActions.WithLabelValues(gameLabel, action, outcomeRejected).Inc()
				log.Debug("action rejected", "error", err)
			} else {
				GameActions.WithLabelValues(gameLabel, action, outcomeError).Inc()
			}
			return nil, nil, err
		}

		_, err = s.repo.Commit(ctx, m, out.Patch)
		if errors.Is(err, store.ErrVersionConflict) {
			StoreConflicts.Inc()
			log.Debug("commit conflict, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			GameActions.WithLabelValues(gameLabel, action, outcomeError).Inc()
			return nil, nil, fmt.Errorf("commit %s on %s: %w", action, id, err)
		}
		GameActions.WithLabelValues(gameLabel, action, outcomeOK).Inc()

		s.schedule(ctx, id, out.Schedule)

		fresh, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return fresh, out, nil
	}
	GameActions.WithLabelValues(gameLabel, action, outcomeBusy).Inc()
	log.Warn("commit attempts exhausted", "attempts", s.attempts)
	return nil, nil, ErrBusy
}

func (s *MatchService) schedule(ctx context.Context, id string, timers []game.Timer) {
	for _, t := range timers {
		job := scheduler.NewJob(id, t, s.now())
		if err := s.timers.Schedule(ctx, job); err != nil {
			// the round stays stuck until the host ends it
			logger.Error("schedule failed", "match", id, "action", t.Action.Type, "error", err)
		}
	}
}
