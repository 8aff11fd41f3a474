package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tablegames/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "doc:"
	redisIndexPrefix   = "docidx:"
	redisChannelPrefix = "docchg:"
	redisUpdateRetries = 8
)

// Redis stores each root as one JSON string. Writes run inside WATCH/MULTI so a
// concurrent writer aborts the transaction instead of being overwritten.
type Redis struct {
	client *redis.Client
	subs   *fanout

	listenOnce sync.Once
	cancel     context.CancelFunc
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(client), nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, subs: newFanout()}
}

// Client exposes the underlying connection for components sharing it.
func (r *Redis) Client() *redis.Client {
	return r.client
}

func docKey(root string) string { return redisKeyPrefix + root }

func indexKey(root string) string {
	return redisIndexPrefix + strings.SplitN(root, "/", 2)[0]
}

func (r *Redis) load(ctx context.Context, c redis.Cmdable, root string) (map[string]any, error) {
	raw, err := c.Get(ctx, docKey(root)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", root, err)
	}
	return decodeDoc(raw)
}

func (r *Redis) Get(ctx context.Context, path string) (any, error) {
	root, rest, err := splitRoot(path)
	if err != nil {
		return nil, err
	}
	doc, err := r.load(ctx, r.client, root)
	if err != nil || doc == nil {
		return nil, err
	}
	return lookup(doc, rest), nil
}

func (r *Redis) Set(ctx context.Context, path string, value any) error {
	root, rest, err := splitRoot(path)
	if err != nil {
		return err
	}
	if len(rest) == 0 && value == nil {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, docKey(root))
			pipe.SRem(ctx, indexKey(root), root)
			pipe.Publish(ctx, redisChannelPrefix+root, "null")
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis delete %s: %w", root, err)
		}
		return nil
	}
	return r.Update(ctx, map[string]any{path: value})
}

func (r *Redis) Update(ctx context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	root, changes, err := groupPatch(patch)
	if err != nil {
		return err
	}
	for i := 0; i < redisUpdateRetries; i++ {
		_, err = r.write(ctx, root, changes, func(map[string]any) error { return nil })
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrVersionConflict
}

func (r *Redis) UpdateIf(ctx context.Context, root string, version int64, patch map[string]any) (int64, error) {
	root = strings.Trim(root, "/")
	if _, _, err := splitRoot(root); err != nil {
		return 0, err
	}
	r2, changes, err := groupPatch(patch)
	if err != nil {
		return 0, err
	}
	if len(changes) > 0 && r2 != root {
		return 0, ErrCrossRoot
	}
	next, err := r.write(ctx, root, changes, func(doc map[string]any) error {
		if doc == nil {
			return ErrNotFound
		}
		if versionOf(doc) != version {
			return ErrVersionConflict
		}
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return 0, ErrVersionConflict
	}
	return next, err
}

// write runs one optimistic transaction. check sees the current document before changes apply.
func (r *Redis) write(ctx context.Context, root string, changes []change, check func(map[string]any) error) (int64, error) {
	var next int64
	key := docKey(root)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		doc, err := r.load(ctx, tx, root)
		if err != nil {
			return err
		}
		if err := check(doc); err != nil {
			return err
		}
		prev := versionOf(doc)
		doc = apply(doc, changes)
		next = bump(doc, prev)
		data, err := encodeDoc(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, indexKey(root), root)
			pipe.Publish(ctx, redisChannelPrefix+root, data)
			return nil
		})
		return err
	}, key)
	return next, err
}

func (r *Redis) Subscribe(ctx context.Context, path string, fn func(any)) (func(), error) {
	root, rest, err := splitRoot(path)
	if err != nil {
		return nil, err
	}
	r.listenOnce.Do(r.listen)

	s, cancel := r.subs.add(ctx, root, rest, fn)
	doc, err := r.load(ctx, r.client, root)
	if err != nil {
		cancel()
		return nil, err
	}
	s.push(doc)
	return cancel, nil
}

// listen runs one pattern subscription for every root and fans out locally.
func (r *Redis) listen() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	ps := r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				root := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
				if !r.subs.has(root) {
					continue
				}
				doc, err := decodeDoc([]byte(msg.Payload))
				if err != nil {
					logger.Warn("redis store: bad change payload", "root", root, "error", err)
					continue
				}
				r.subs.publish(root, doc)
			}
		}
	}()
}

func (r *Redis) List(ctx context.Context, collection string) ([]string, error) {
	collection = strings.Trim(collection, "/")
	members, err := r.client.SMembers(ctx, redisIndexPrefix+collection).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", collection, err)
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, strings.TrimPrefix(m, collection+"/"))
	}
	return keys, nil
}

func (r *Redis) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.subs.closeAll()
	return r.client.Close()
}
