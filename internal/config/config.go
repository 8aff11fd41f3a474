package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tablegames/internal/logger"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	AppPort       string `env:"APP_PORT" envDefault:"8080"`
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	DatabaseURL   string `env:"DATABASE_URL"`
	JWTSecret     string `env:"JWT_SECRET"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON       bool   `env:"LOG_JSON" envDefault:"false"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	// Rate limits (запросов за окно)
	APIRateLimit   int           `env:"API_RATE_LIMIT" envDefault:"120"`
	APIRateWindow  time.Duration `env:"API_RATE_WINDOW" envDefault:"1m"`
	GameRateLimit  int           `env:"GAME_RATE_LIMIT" envDefault:"60"`
	GameRateWindow time.Duration `env:"GAME_RATE_WINDOW" envDefault:"1m"`

	// Match lifecycle
	StaleAfter      time.Duration `env:"STALE_AFTER" envDefault:"24h"`
	CompletedGrace  time.Duration `env:"COMPLETED_GRACE" envDefault:"1h"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"10m"`
	SchedulerPoll   time.Duration `env:"SCHEDULER_POLL" envDefault:"200ms"`
	CommitAttempts  int           `env:"COMMIT_ATTEMPTS" envDefault:"5"`
}

// Parse reads the environment into a Config and validates it.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.CommitAttempts < 1 {
		return errors.New("COMMIT_ATTEMPTS must be at least 1")
	}
	if c.GameRateLimit < 1 || c.APIRateLimit < 1 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

// Загрузка конфига из env (.env подхватывается, если есть)
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}
