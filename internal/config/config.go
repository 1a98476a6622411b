// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration. Every field maps to one
// environment variable; the defaults give a working single-node server
// with in-memory persistence.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Ledger
	GridSize      int           `env:"GRID_SIZE" envDefault:"1000" validate:"min=1,max=4096"`
	LockDuration  time.Duration `env:"LOCK_DURATION" envDefault:"168h" validate:"gt=0"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m" validate:"gt=0"`
	AnonymousName string        `env:"ANONYMOUS_NAME" envDefault:"Anonymous" validate:"required,max=64"`
	ClearMode     string        `env:"CLEAR_MODE" envDefault:"all" validate:"oneof=all selected"`

	// Viewport and sessions
	CellSize      float64       `env:"CELL_SIZE" envDefault:"10" validate:"gt=0"`
	MinScale      float64       `env:"MIN_SCALE" envDefault:"0.05" validate:"gt=0"`
	MaxScale      float64       `env:"MAX_SCALE" envDefault:"20" validate:"gtefield=MinScale"`
	MaxFitScale   float64       `env:"MAX_FIT_SCALE" envDefault:"4" validate:"gt=0"`
	FitPadding    float64       `env:"FIT_PADDING" envDefault:"40" validate:"gte=0"`
	FrameInterval time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms" validate:"gt=0"`
	MaxSessions   int           `env:"MAX_SESSIONS" envDefault:"256" validate:"min=1"`

	// Persistence
	StorageBackend  string        `env:"STORAGE_BACKEND" envDefault:"memory" validate:"oneof=memory badger postgres"`
	DatabaseURL     string        `env:"DATABASE_URL" validate:"required_if=StorageBackend postgres"`
	NumShards       int           `env:"NUM_SHARDS" envDefault:"8" validate:"min=1,max=1024"`
	QueryTimeout    time.Duration `env:"QUERY_TIMEOUT" envDefault:"5s" validate:"gte=0"`
	BadgerPath      string        `env:"BADGER_PATH" envDefault:"./data/pixelwall" validate:"required_if=StorageBackend badger"`
	PersistInterval time.Duration `env:"PERSIST_INTERVAL" envDefault:"2s" validate:"gt=0"`

	// Claims
	ClaimRateLimit float64 `env:"CLAIM_RATE_LIMIT" envDefault:"5" validate:"gt=0"`
	ClaimRateBurst int     `env:"CLAIM_RATE_BURST" envDefault:"10" validate:"min=1"`

	// Plugin fan-out
	TriggerRetryMax     int           `env:"TRIGGER_RETRY_MAX" envDefault:"3" validate:"min=0,max=10"`
	TriggerRetryBackoff time.Duration `env:"TRIGGER_RETRY_BACKOFF" envDefault:"100ms" validate:"gte=0"`
	TriggerRPCTimeout   time.Duration `env:"TRIGGER_RPC_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES" envDefault:"5" validate:"min=1"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	PluginConfigPath    string        `env:"PLUGIN_CONFIG_PATH"`
}

// Load reads and validates the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
