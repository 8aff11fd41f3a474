// Package scheduler holds one-shot delayed actions (reveal windows, offer
// countdowns, round resets) outside any single client or process.
package scheduler

import (
	"context"
	"time"

	"tablegames/internal/game"
	"tablegames/internal/logger"

	"github.com/google/uuid"
)

// Job fires Action against MatchID once DueAt has passed.
type Job struct {
	ID      string      `json:"id"`
	MatchID string      `json:"matchId"`
	DueAt   time.Time   `json:"dueAt"`
	Action  game.Action `json:"action"`
}

// NewJob stamps a job id and due time.
func NewJob(matchID string, t game.Timer, now time.Time) Job {
	return Job{
		ID:      uuid.NewString(),
		MatchID: matchID,
		DueAt:   now.Add(t.After),
		Action:  t.Action,
	}
}

// FireFunc handles a claimed job. Each job is handed to exactly one caller.
type FireFunc func(ctx context.Context, job Job)

type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
	// Claim removes and returns every job due at now.
	Claim(ctx context.Context, now time.Time) ([]Job, error)
	Close() error
}

// Run polls s every interval and fires claimed jobs until ctx is done.
func Run(ctx context.Context, s Scheduler, interval time.Duration, fire FireFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			jobs, err := s.Claim(ctx, now)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("scheduler: claim failed", "error", err)
				}
				continue
			}
			for _, j := range jobs {
				fire(ctx, j)
			}
		}
	}
}
