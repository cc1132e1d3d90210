package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	UserID    string

	// Database
	DatabaseURL      string
	DatabaseDriver   string
	DatabaseMaxConns int
	SQLitePath       string
	LocalMode        bool

	// Redis
	RedisURL        string
	WebhookDedupTTL time.Duration

	// RabbitMQ
	RabbitMQURL   string
	RabbitMQQueue string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string

	// Maintenance
	MaintenanceEnabled  bool
	MaintenanceInterval time.Duration

	// Profile mirror
	MirrorURL               string
	MirrorAPIKey            string
	MirrorTimeout           time.Duration
	MirrorOAuthClientID     string
	MirrorOAuthClientSecret string
	MirrorOAuthTokenURL     string
	MirrorOAuthScopes       []string

	// Legacy import
	LegacyDatabaseURL string

	// MCP
	MCPAddr      string
	MCPAuthToken string
}

// Load reads configuration from the environment and an optional .env file.
// Malformed values fall back to their defaults; Validate rejects values that
// parse but cannot work.
func Load() (*Config, error) {
	_ = godotenv.Load()

	databaseURL := env("DATABASE_URL", "", parseString)
	localMode := env("TUTORHUB_LOCAL_MODE", false, strconv.ParseBool) || databaseURL == ""

	driver := strings.ToLower(env("DATABASE_DRIVER", "auto", parseString))
	if localMode {
		driver = "sqlite"
	}

	cfg := &Config{
		AppEnv:    env("APP_ENV", "development", parseString),
		LogLevel:  env("LOG_LEVEL", "info", parseString),
		LogFormat: env("LOG_FORMAT", "", parseString),
		UserID:    env("TUTORHUB_USER_ID", "00000000-0000-0000-0000-000000000001", parseString),

		DatabaseURL:      databaseURL,
		DatabaseDriver:   driver,
		DatabaseMaxConns: env("DATABASE_MAX_CONNS", 10, strconv.Atoi),
		SQLitePath:       env("SQLITE_PATH", defaultSQLitePath(), parseString),
		LocalMode:        localMode,

		RedisURL:        env("REDIS_URL", "", parseString),
		WebhookDedupTTL: env("WEBHOOK_DEDUP_TTL", 72*time.Hour, time.ParseDuration),

		RabbitMQURL:   env("RABBITMQ_URL", "", parseString),
		RabbitMQQueue: env("RABBITMQ_QUEUE", "tutorhub.mirror-sync", parseString),

		OutboxPollInterval:     env("OUTBOX_POLL_INTERVAL", 100*time.Millisecond, time.ParseDuration),
		OutboxBatchSize:        env("OUTBOX_BATCH_SIZE", 100, strconv.Atoi),
		OutboxMaxRetries:       env("OUTBOX_MAX_RETRIES", 5, strconv.Atoi),
		OutboxStatsInterval:    env("OUTBOX_STATS_INTERVAL", 30*time.Second, time.ParseDuration),
		OutboxRetentionDays:    env("OUTBOX_RETENTION_DAYS", 14, strconv.Atoi),
		OutboxCleanupInterval:  env("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour, time.ParseDuration),
		OutboxProcessorEnabled: env("OUTBOX_PROCESSOR_ENABLED", true, strconv.ParseBool),

		WorkerHealthAddr: env("WORKER_HEALTH_ADDR", "0.0.0.0:8081", parseString),

		MaintenanceEnabled:  env("MAINTENANCE_ENABLED", true, strconv.ParseBool),
		MaintenanceInterval: env("MAINTENANCE_INTERVAL", time.Hour, time.ParseDuration),

		MirrorURL:               env("MIRROR_URL", "", parseString),
		MirrorAPIKey:            env("MIRROR_API_KEY", "", parseString),
		MirrorTimeout:           env("MIRROR_TIMEOUT", 10*time.Second, time.ParseDuration),
		MirrorOAuthClientID:     env("MIRROR_OAUTH_CLIENT_ID", "", parseString),
		MirrorOAuthClientSecret: env("MIRROR_OAUTH_CLIENT_SECRET", "", parseString),
		MirrorOAuthTokenURL:     env("MIRROR_OAUTH_TOKEN_URL", "", parseString),
		MirrorOAuthScopes:       env("MIRROR_OAUTH_SCOPES", []string(nil), parseList),

		LegacyDatabaseURL: env("LEGACY_DATABASE_URL", "", parseString),

		MCPAddr:      env("MCP_ADDR", "0.0.0.0:8082", parseString),
		MCPAuthToken: env("MCP_AUTH_TOKEN", "", parseString),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every setting that would make a component misbehave.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "auto", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", c.DatabaseDriver))
	}
	positive := []struct {
		key string
		ok  bool
	}{
		{"OUTBOX_POLL_INTERVAL", c.OutboxPollInterval > 0},
		{"OUTBOX_STATS_INTERVAL", c.OutboxStatsInterval > 0},
		{"OUTBOX_CLEANUP_INTERVAL", c.OutboxCleanupInterval > 0},
		{"OUTBOX_BATCH_SIZE", c.OutboxBatchSize > 0},
		{"OUTBOX_RETENTION_DAYS", c.OutboxRetentionDays > 0},
		{"MAINTENANCE_INTERVAL", c.MaintenanceInterval > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, fmt.Errorf("%s: must be positive", p.key))
		}
	}
	if c.OutboxMaxRetries < 0 {
		errs = append(errs, errors.New("OUTBOX_MAX_RETRIES: must not be negative"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsLocalMode returns true when the service runs on SQLite without servers.
func (c *Config) IsLocalMode() bool {
	return c.LocalMode
}

// IsSQLite returns true if the SQLite store is selected.
func (c *Config) IsSQLite() bool {
	return c.DatabaseDriver == "sqlite" || (c.DatabaseDriver == "auto" && c.LocalMode)
}

// IsPostgres returns true if the PostgreSQL store is selected.
func (c *Config) IsPostgres() bool {
	return c.DatabaseDriver == "postgres" || (c.DatabaseDriver == "auto" && !c.LocalMode)
}

// MirrorEnabled returns true when a profile mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.MirrorURL != ""
}

// env returns the parsed value of key, or def when key is unset or does not
// parse.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

// parseList splits a comma or space separated value.
func parseList(s string) ([]string, error) {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	}), nil
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tutorhub", "billing.db")
	}
	return filepath.Join(home, ".tutorhub", "billing.db")
}
