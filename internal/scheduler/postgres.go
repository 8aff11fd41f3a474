package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tablegames/internal/game"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores jobs in the timers table. Claiming deletes rows with
// FOR UPDATE SKIP LOCKED so concurrent replicas never share a job.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Schedule(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job.Action)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO timers (id, match_id, due_at, payload) VALUES ($1, $2, $3, $4::jsonb)`,
		job.ID, job.MatchID, job.DueAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) Claim(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := p.db.Query(ctx,
		`DELETE FROM timers
		 WHERE id IN (
		     SELECT id FROM timers
		     WHERE due_at <= $1
		     ORDER BY due_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, match_id, due_at, payload`,
		now, claimBatch,
	)
	if err != nil {
		return nil, fmt.Errorf("claim timers: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			j   Job
			raw []byte
		)
		if err := rows.Scan(&j.ID, &j.MatchID, &j.DueAt, &raw); err != nil {
			return nil, err
		}
		var a game.Action
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode timer %s: %w", j.ID, err)
		}
		j.Action = a
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (p *Postgres) Close() error { return nil }
