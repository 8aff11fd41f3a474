package service

import (
	"context"
	"errors"
	"time"

	"tablegames/internal/logger"
	"tablegames/internal/repository"
	"tablegames/internal/session"
)

// Janitor removes abandoned lobbies and finished matches past their grace.
type Janitor struct {
	repo       *repository.MatchRepository
	staleAfter time.Duration
	grace      time.Duration
	now        func() time.Time
}

func NewJanitor(repo *repository.MatchRepository, staleAfter, grace time.Duration, now func() time.Time) *Janitor {
	if now == nil {
		now = time.Now
	}
	return &Janitor{repo: repo, staleAfter: staleAfter, grace: grace, now: now}
}

// Sweep deletes every match that is stale or expired and returns how many went.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	ids, err := j.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	now := j.now()
	removed := 0
	for _, id := range ids {
		m, err := j.repo.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			logger.Warn("janitor: read failed", "match", id, "error", err)
			continue
		}
		if !session.IsStale(m, now, j.staleAfter) && !session.IsExpired(m, now, j.grace) {
			continue
		}
		if err := j.repo.Delete(ctx, id); err != nil {
			logger.Warn("janitor: delete failed", "match", id, "error", err)
			continue
		}
		removed++
		MatchesSwept.Inc()
		logger.Info("janitor: match removed", "match", id, "status", m.Status)
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("janitor: sweep failed", "error", err)
			}
		}
	}
}
