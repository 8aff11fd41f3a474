package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tablegames/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgChannel = "documents"

// Postgres keeps each root as a jsonb row in the documents table
// (see internal/migrations). Writes lock the row with SELECT ... FOR UPDATE
// and announce the change with pg_notify.
type Postgres struct {
	db   *pgxpool.Pool
	subs *fanout

	listenOnce sync.Once
	cancel     context.CancelFunc
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db, subs: newFanout()}
}

func (p *Postgres) load(ctx context.Context, q pgx.Tx, root string, lock bool) (map[string]any, bool, error) {
	query := `SELECT body FROM documents WHERE root = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var raw []byte
	var err error
	if q != nil {
		err = q.QueryRow(ctx, query, root).Scan(&raw)
	} else {
		err = p.db.QueryRow(ctx, query, root).Scan(&raw)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", root, err)
	}
	doc, err := decodeDoc(raw)
	return doc, true, err
}

func (p *Postgres) Get(ctx context.Context, path string) (any, error) {
	root, rest, err := splitRoot(path)
	if err != nil {
		return nil, err
	}
	doc, ok, err := p.load(ctx, nil, root, false)
	if err != nil || !ok {
		return nil, err
	}
	return lookup(doc, rest), nil
}

func (p *Postgres) Set(ctx context.Context, path string, value any) error {
	root, rest, err := splitRoot(path)
	if err != nil {
		return err
	}
	if len(rest) == 0 && value == nil {
		tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE root = $1`, root); err != nil {
			return fmt.Errorf("delete %s: %w", root, err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, root); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	return p.Update(ctx, map[string]any{path: value})
}

func (p *Postgres) Update(ctx context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	root, changes, err := groupPatch(patch)
	if err != nil {
		return err
	}
	_, err = p.write(ctx, root, changes, func(map[string]any, bool) error { return nil })
	return err
}

func (p *Postgres) UpdateIf(ctx context.Context, root string, version int64, patch map[string]any) (int64, error) {
	root = strings.Trim(root, "/")
	if _, _, err := splitRoot(root); err != nil {
		return 0, err
	}
	r, changes, err := groupPatch(patch)
	if err != nil {
		return 0, err
	}
	if len(changes) > 0 && r != root {
		return 0, ErrCrossRoot
	}
	return p.write(ctx, root, changes, func(doc map[string]any, exists bool) error {
		if !exists {
			return ErrNotFound
		}
		if versionOf(doc) != version {
			return ErrVersionConflict
		}
		return nil
	})
}

func (p *Postgres) write(ctx context.Context, root string, changes []change, check func(map[string]any, bool) error) (int64, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc, exists, err := p.load(ctx, tx, root, true)
	if err != nil {
		return 0, err
	}
	if err := check(doc, exists); err != nil {
		return 0, err
	}
	prev := versionOf(doc)
	doc = apply(doc, changes)
	next := bump(doc, prev)
	data, err := encodeDoc(doc)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (root, body, version, updated_at)
		 VALUES ($1, $2::jsonb, $3, now())
		 ON CONFLICT (root) DO UPDATE
		 SET body = EXCLUDED.body, version = EXCLUDED.version, updated_at = now()`,
		root, string(data), next,
	); err != nil {
		return 0, fmt.Errorf("write %s: %w", root, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, root); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return next, nil
}

func (p *Postgres) Subscribe(ctx context.Context, path string, fn func(any)) (func(), error) {
	root, rest, err := splitRoot(path)
	if err != nil {
		return nil, err
	}
	p.listenOnce.Do(p.listen)

	s, cancel := p.subs.add(ctx, root, rest, fn)
	doc, _, err := p.load(ctx, nil, root, false)
	if err != nil {
		cancel()
		return nil, err
	}
	s.push(doc)
	return cancel, nil
}

// listen holds one pooled connection in LISTEN mode. Notifications only carry
// the root, so the current body is re-read before fanning out.
func (p *Postgres) listen() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		for ctx.Err() == nil {
			if err := p.listenConn(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("postgres store: listen failed, retrying", "error", err)
				time.Sleep(time.Second)
			}
		}
	}()
}

func (p *Postgres) listenConn(ctx context.Context) error {
	conn, err := p.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		root := n.Payload
		if !p.subs.has(root) {
			continue
		}
		doc, _, err := p.load(ctx, nil, root, false)
		if err != nil {
			logger.Warn("postgres store: reload after notify failed", "root", root, "error", err)
			continue
		}
		p.subs.publish(root, doc)
	}
}

func (p *Postgres) List(ctx context.Context, collection string) ([]string, error) {
	collection = strings.Trim(collection, "/")
	rows, err := p.db.Query(ctx, `SELECT root FROM documents WHERE root LIKE $1 ORDER BY root`, collection+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, err
		}
		keys = append(keys, strings.TrimPrefix(root, collection+"/"))
	}
	return keys, rows.Err()
}

func (p *Postgres) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.subs.closeAll()
	return nil
}
