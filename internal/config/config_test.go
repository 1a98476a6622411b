package config

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port: got %q, want %q", cfg.Port, "8080")
	}
	if cfg.GridSize != 1000 {
		t.Errorf("GridSize: got %d, want 1000", cfg.GridSize)
	}
	if cfg.LockDuration != 7*24*time.Hour {
		t.Errorf("LockDuration: got %v, want 168h", cfg.LockDuration)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("SweepInterval: got %v", cfg.SweepInterval)
	}
	if cfg.FrameInterval != 16*time.Millisecond {
		t.Errorf("FrameInterval: got %v", cfg.FrameInterval)
	}
	if cfg.StorageBackend != "memory" {
		t.Errorf("StorageBackend: got %q", cfg.StorageBackend)
	}
	if cfg.ClearMode != "all" {
		t.Errorf("ClearMode: got %q", cfg.ClearMode)
	}
	if cfg.AnonymousName != "Anonymous" {
		t.Errorf("AnonymousName: got %q", cfg.AnonymousName)
	}
	if cfg.TriggerRetryBackoff != 100*time.Millisecond {
		t.Errorf("TriggerRetryBackoff: got %v", cfg.TriggerRetryBackoff)
	}
	if cfg.MinScale != 0.05 || cfg.MaxScale != 20 {
		t.Errorf("scale bounds: got [%v, %v]", cfg.MinScale, cfg.MaxScale)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PORT":            "9090",
		"LOG_LEVEL":       "DEBUG",
		"GRID_SIZE":       "256",
		"LOCK_DURATION":   "1h",
		"STORAGE_BACKEND": "postgres",
		"DATABASE_URL":    "postgres://localhost/pixelwall",
		"NUM_SHARDS":      "16",
		"CLEAR_MODE":      "selected",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port: got %q", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q", cfg.LogLevel)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel: got %v", cfg.SlogLevel())
	}
	if cfg.GridSize != 256 || cfg.LockDuration != time.Hour || cfg.NumShards != 16 {
		t.Errorf("got grid=%d lock=%v shards=%d", cfg.GridSize, cfg.LockDuration, cfg.NumShards)
	}
	if cfg.ClearMode != "selected" {
		t.Errorf("ClearMode: got %q", cfg.ClearMode)
	}
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	t.Setenv("GRID_SIZE", "64")
	t.Setenv("MAX_SESSIONS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GridSize != 64 || cfg.MaxSessions != 3 {
		t.Errorf("got grid=%d sessions=%d", cfg.GridSize, cfg.MaxSessions)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantMsg string
	}{
		{"grid too large", map[string]string{"GRID_SIZE": "5000"}, "GRID_SIZE must be at most 4096"},
		{"zero grid", map[string]string{"GRID_SIZE": "0"}, "GRID_SIZE must be at least 1"},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "redis"}, "STORAGE_BACKEND must be one of"},
		{"postgres without url", map[string]string{"STORAGE_BACKEND": "postgres"}, "DATABASE_URL is required"},
		{"scale bounds inverted", map[string]string{"MIN_SCALE": "2", "MAX_SCALE": "1"}, "MAX_SCALE must not be less than"},
		{"bad clear mode", map[string]string{"CLEAR_MODE": "none"}, "CLEAR_MODE must be one of"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL must be one of"},
		{"non numeric port", map[string]string{"PORT": "http"}, "PORT must be numeric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("got %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_Unparsable(t *testing.T) {
	if _, err := LoadFrom(map[string]string{"LOCK_DURATION": "a week"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q): got %v, want %v", in, got, want)
		}
	}
}
