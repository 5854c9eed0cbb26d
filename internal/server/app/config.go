package app

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	BootstrapKey   string // Required: the super-credential accepted before any store lookup
	SigningSecret  string // Required: symmetric secret for token signing
	EnvelopeSecret string // Optional: when set, outbound socket frames are wrapped in signed envelopes

	DatabaseFile        string        // Path to SQLite database file (default: ./kohaku.db)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	HousekeepingCron string        // Cron expression for the stale-code prune (default: daily 3am)
	CodeStaleAfter   time.Duration // Prune codes unused this long (default: 60 days)
}

var (
	ErrMissingBootstrapKey  = errors.New("KOHAKU_BOOTSTRAP_KEY must be set")
	ErrMissingSigningSecret = errors.New("KOHAKU_SIGNING_SECRET must be set")
)

func LoadConfig() (Config, error) {
	cfg := Config{
		BootstrapKey:        os.Getenv("KOHAKU_BOOTSTRAP_KEY"),
		SigningSecret:       os.Getenv("KOHAKU_SIGNING_SECRET"),
		EnvelopeSecret:      os.Getenv("KOHAKU_ENVELOPE_SECRET"),
		DatabaseFile:        getEnvOrDefault("KOHAKU_DATABASE_FILE", "kohaku.db"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingCron:    getEnvOrDefault("KOHAKU_HOUSEKEEPING_CRON", "0 0 3 * * *"),
		CodeStaleAfter:      getEnvDurationOrDefault("KOHAKU_CODE_STALE_AFTER", 60*24*time.Hour),
	}

	if cfg.BootstrapKey == "" {
		return Config{}, ErrMissingBootstrapKey
	}
	if cfg.SigningSecret == "" {
		return Config{}, ErrMissingSigningSecret
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
