package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STATE_PATH", "/tmp/console")

	cfg := Load()
	if cfg.ClosedDelay != 2*time.Second || cfg.ErrorDelay != time.Second {
		t.Fatalf("unexpected reconnect delays: %s %s", cfg.ClosedDelay, cfg.ErrorDelay)
	}
	if cfg.LogCacheSize != 1000 {
		t.Fatalf("expected cache size 1000 got %d", cfg.LogCacheSize)
	}
	if cfg.DataStoreDSN != filepath.Join("/tmp/console", "bot-console.db") {
		t.Fatalf("unexpected default DSN %s", cfg.DataStoreDSN)
	}
	if !cfg.Autostart || cfg.LegacyContentType {
		t.Fatalf("unexpected flags: autostart=%t legacy=%t", cfg.Autostart, cfg.LegacyContentType)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "https://bots.example.com/")
	t.Setenv("LIVE_LOG_PATH", "api/live-log")
	t.Setenv("RECONNECT_CLOSED_DELAY", "500")
	t.Setenv("RECONNECT_ERROR_DELAY", "3s")
	t.Setenv("LEGACY_CONTENT_TYPE", "yes")
	t.Setenv("LOG_CACHE_SIZE", "not-a-number")
	t.Setenv("DATASTORE_DRIVER", "postgres")
	t.Setenv("DATASTORE_DSN", "")
	t.Setenv("POSTGRES_DSN", "postgres://u@db/console")

	cfg := Load()
	if got := cfg.LiveLogURL(); got != "https://bots.example.com/api/live-log" {
		t.Fatalf("unexpected live log URL %s", got)
	}
	if cfg.ClosedDelay != 500*time.Millisecond || cfg.ErrorDelay != 3*time.Second {
		t.Fatalf("unexpected delays: %s %s", cfg.ClosedDelay, cfg.ErrorDelay)
	}
	if !cfg.LegacyContentType {
		t.Fatal("expected legacy content type enabled")
	}
	if cfg.LogCacheSize != 1000 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.LogCacheSize)
	}
	if cfg.DataStoreDSN != "postgres://u@db/console" {
		t.Fatalf("unexpected postgres DSN %s", cfg.DataStoreDSN)
	}
}
