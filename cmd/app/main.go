package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tablegames/internal/config"
	"tablegames/internal/db"
	"tablegames/internal/game"
	httpServer "tablegames/internal/http"
	"tablegames/internal/http/handlers"
	"tablegames/internal/http/middleware"
	"tablegames/internal/logger"
	"tablegames/internal/migrations"
	"tablegames/internal/repository"
	"tablegames/internal/scheduler"
	"tablegames/internal/service"
	"tablegames/internal/store"
	"tablegames/internal/ws"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

const version = "1.0.0"

type backend struct {
	doc    store.Document
	timers scheduler.Scheduler
	checks map[string]handlers.Check
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config) backend {
	b := backend{checks: map[string]handlers.Check{}, close: func() {}}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		client, err := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			if cfg.StoreBackend == config.BackendRedis {
				logger.Fatal("redis unavailable", "error", err)
			}
			logger.Warn("redis unavailable, rate limits are per process", "error", err)
		} else {
			rdb = client
			middleware.UseRedis(rdb)
			b.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		b.doc = store.NewRedisWithClient(rdb)
		b.timers = scheduler.NewRedis(rdb)
	case config.BackendPostgres:
		pool := db.Connect(cfg.DatabaseURL)
		if _, err := db.Migrate(ctx, pool, migrations.FS); err != nil {
			logger.Fatal("migrations failed", "error", err)
		}
		b.doc = store.NewPostgres(pool)
		b.timers = scheduler.NewPostgres(pool)
		b.checks["database"] = pool.Ping
		b.close = pool.Close
	default:
		b.doc = store.NewMemory()
		b.timers = scheduler.NewMemory()
	}

	inner := b.close
	b.close = func() {
		b.timers.Close()
		b.doc.Close()
		inner()
		if rdb != nil {
			rdb.Close()
		}
	}
	return b
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	b := openBackend(ctx, cfg)
	defer b.close()
	logger.Info("store ready", "backend", cfg.StoreBackend)

	repo := repository.NewMatchRepository(b.doc)
	matches := service.NewMatchService(repo, game.NewFactory(nil, nil), b.timers, service.Options{
		Attempts: cfg.CommitAttempts,
	})
	hub := ws.NewHub(repo, matches)
	defer hub.Close()

	go scheduler.Run(ctx, b.timers, cfg.SchedulerPoll, matches.Fire)
	go service.NewJanitor(repo, cfg.StaleAfter, cfg.CompletedGrace, nil).Run(ctx, cfg.JanitorInterval)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler: handlers.NewHandler(matches),
		Health:  handlers.NewHealthHandler(version, b.checks),
		Hub:     hub,
		Config:  cfg,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
