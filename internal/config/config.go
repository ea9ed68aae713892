package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Addr       string
	LogLevel   slog.Level
	AdminToken string

	Store       string
	SQLitePath  string
	DatabaseURL string

	TickEvery       time.Duration
	ClockAutoStart  bool
	RunOnce         bool
	Workers         int
	TaskMaxAttempts int
	TaskBackoff     time.Duration

	Queue        string
	SpoolPath    string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	Lock          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockMaxWait   time.Duration
	LockMaxHold   time.Duration

	SeedFile    string
	SeedOnStart bool
	Seed        int64
}

type CLIConfig struct {
	APIBaseURL string
	AdminToken string
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadServerFromEnv() (ServerConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TYCOON_API_ADDR", ":8080")
	}

	cfg := ServerConfig{
		Addr:       addr,
		LogLevel:   envLevelDefault("TYCOON_LOG_LEVEL", slog.LevelInfo),
		AdminToken: strings.TrimSpace(os.Getenv("TYCOON_ADMIN_TOKEN")),

		Store:       envChoiceDefault("TYCOON_STORE", "sqlite", "memory", "sqlite", "postgres"),
		SQLitePath:  envDefault("TYCOON_SQLITE_PATH", "tycoon.db"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		TickEvery:       envDurationDefault("TYCOON_TICK_EVERY", time.Minute),
		ClockAutoStart:  envBoolDefault("TYCOON_CLOCK_AUTOSTART", true),
		RunOnce:         envBoolDefault("TYCOON_RUN_ONCE", false),
		Workers:         envIntDefault("TYCOON_WORKERS", 8),
		TaskMaxAttempts: envIntDefault("TYCOON_TASK_MAX_ATTEMPTS", 3),
		TaskBackoff:     envDurationDefault("TYCOON_TASK_BACKOFF", 500*time.Millisecond),

		Queue:        envChoiceDefault("TYCOON_QUEUE", "memory", "memory", "spool", "kafka"),
		SpoolPath:    envDefault("TYCOON_SPOOL_PATH", "tycoon-queue.json"),
		KafkaBrokers: envListDefault("KAFKA_BROKERS"),
		KafkaTopic:   envDefault("KAFKA_TOPIC", "tycoon.tasks"),
		KafkaGroupID: envDefault("KAFKA_GROUP_ID", "tycoon-workers"),

		Lock:          envChoiceDefault("TYCOON_LOCK", "local", "local", "redis"),
		RedisAddr:     envDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntDefault("REDIS_DB", 0),
		LockMaxWait:   envDurationDefault("TYCOON_LOCK_MAX_WAIT", 500*time.Millisecond),
		LockMaxHold:   envDurationDefault("TYCOON_LOCK_MAX_HOLD", 5*time.Second),

		SeedFile:    strings.TrimSpace(os.Getenv("TYCOON_SEED_FILE")),
		SeedOnStart: envBoolDefault("TYCOON_SEED_ON_START", true),
		Seed:        int64(envIntDefault("TYCOON_RANDOM_SEED", 0)),
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.TaskMaxAttempts <= 0 {
		cfg.TaskMaxAttempts = 3
	}
	if cfg.Store == "postgres" && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required when TYCOON_STORE=postgres")
	}
	if cfg.Queue == "kafka" && len(cfg.KafkaBrokers) == 0 {
		return cfg, fmt.Errorf("KAFKA_BROKERS is required when TYCOON_QUEUE=kafka")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TYC_API_BASE_URL", "http://localhost:8080"), "/"),
		AdminToken: strings.TrimSpace(os.Getenv("TYCOON_ADMIN_TOKEN")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envChoiceDefault(key, fallback string, allowed ...string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

func envListDefault(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envLevelDefault(key string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
