package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TYCOON_STORE", "")
	t.Setenv("TYCOON_QUEUE", "")
	t.Setenv("TYCOON_ADMIN_TOKEN", "")
	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" || cfg.Store != "sqlite" || cfg.Queue != "memory" || cfg.Lock != "local" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.TickEvery != time.Minute || cfg.Workers != 8 || cfg.TaskMaxAttempts != 3 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.LockMaxWait != 500*time.Millisecond || cfg.LockMaxHold != 5*time.Second {
		t.Fatalf("lock defaults = %v / %v", cfg.LockMaxWait, cfg.LockMaxHold)
	}
	if !cfg.SeedOnStart || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("seed/log defaults = %+v", cfg)
	}
	if !cfg.ClockAutoStart || cfg.AdminToken != "" {
		t.Fatalf("clock/admin defaults = %+v", cfg)
	}
}

func TestLoadServerOverridesAndFallbacks(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TYCOON_TICK_EVERY", "soon")
	t.Setenv("TYCOON_WORKERS", "-3")
	t.Setenv("TYCOON_QUEUE", "Kafka")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("TYCOON_LOG_LEVEL", "debug")
	t.Setenv("TYCOON_STORE", "cassandra")
	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.TickEvery != time.Minute || cfg.Workers != 8 {
		t.Fatalf("invalid values should fall back: %+v", cfg)
	}
	if cfg.Queue != "kafka" || len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("kafka = %s %v", cfg.Queue, cfg.KafkaBrokers)
	}
	if cfg.Store != "sqlite" || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("store=%s level=%v", cfg.Store, cfg.LogLevel)
	}
}

func TestLoadServerRequiresBackendSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without url", env: map[string]string{"TYCOON_STORE": "postgres", "DATABASE_URL": ""}},
		{name: "kafka without brokers", env: map[string]string{"TYCOON_QUEUE": "kafka", "KAFKA_BROKERS": ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadServerFromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TYCOON_TEST_FROM_FILE=file\nTYCOON_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TYCOON_TEST_PRESET", "env")
	t.Setenv("TYCOON_TEST_FROM_FILE", "")
	os.Unsetenv("TYCOON_TEST_FROM_FILE")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("TYCOON_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("from file = %q", got)
	}
	if got := os.Getenv("TYCOON_TEST_PRESET"); got != "env" {
		t.Fatalf("preset overridden: %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file err = %v", err)
	}
}
