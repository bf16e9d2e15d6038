package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Operators
	OperatorsPath string

	// Fanout
	FanoutAddr string

	// Raw envelope archive ("" disables archiving)
	ArchivePath string

	// Session timing
	HandshakeTimeout time.Duration
	AuthMaxAttempts  int
	BackoffBase      time.Duration
	BackoffCap       time.Duration

	// Staleness sweep
	StaleTTL      time.Duration
	SweepInterval time.Duration

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		OperatorsPath: envStr("OPERATORS_PATH", "internal/config/operators.yaml"),

		FanoutAddr: envStr("FANOUT_ADDR", ":8790"),

		ArchivePath: envStr("ARCHIVE_PATH", ""),

		HandshakeTimeout: time.Duration(envInt("HANDSHAKE_TIMEOUT_SEC", 10)) * time.Second,
		AuthMaxAttempts:  envInt("AUTH_MAX_ATTEMPTS", 5),
		BackoffBase:      time.Duration(envInt("BACKOFF_BASE_SEC", 1)) * time.Second,
		BackoffCap:       time.Duration(envInt("BACKOFF_CAP_SEC", 30)) * time.Second,

		// Finished matches drop out after 10 minutes without an update;
		// live matches are never swept.
		StaleTTL:      time.Duration(envInt("STALE_TTL_SEC", 600)) * time.Second,
		SweepInterval: time.Duration(envInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
