package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisDocumentIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	r, err := NewRedis(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), db)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()

	runDocumentSuite(t, r, "games/redis-it-"+strconv.FormatInt(time.Now().UnixNano(), 10))
}

func TestPostgresDocumentIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	b, err := os.ReadFile(filepath.Join("..", "migrations", "001_documents.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(context.Background(), string(b)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	p := NewPostgres(pool)
	defer p.Close()
	runDocumentSuite(t, p, "games/pg-it-"+strconv.FormatInt(time.Now().UnixNano(), 10))
}
