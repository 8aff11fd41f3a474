package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tablegames/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisQueueKey = "timers:due"
	redisJobsKey  = "timers:jobs"
	claimBatch    = 100
)

// Redis keeps due times in a sorted set and payloads in a hash. A replica owns
// a job only if its ZREM removed it, so each job fires once across replicas.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Schedule(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisJobsKey, job.ID, data)
		pipe.ZAdd(ctx, redisQueueKey, redis.Z{Score: float64(job.DueAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.ID, err)
	}
	return nil
}

func (r *Redis) Claim(ctx context.Context, now time.Time) ([]Job, error) {
	ids, err := r.client.ZRangeByScore(ctx, redisQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: claimBatch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan due timers: %w", err)
	}

	var jobs []Job
	for _, id := range ids {
		removed, err := r.client.ZRem(ctx, redisQueueKey, id).Result()
		if err != nil {
			return jobs, err
		}
		if removed == 0 {
			continue // another replica got it
		}
		raw, err := r.client.HGet(ctx, redisJobsKey, id).Bytes()
		r.client.HDel(ctx, redisJobsKey, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return jobs, err
		}
		var j Job
		if err := json.Unmarshal(raw, &j); err != nil {
			logger.Warn("scheduler: dropping bad job", "id", id, "error", err)
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (r *Redis) Close() error { return nil }
