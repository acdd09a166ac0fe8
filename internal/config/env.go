// Package config handles environment-based configuration loading and the
// per-source file configuration consumed by the aggregator core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings (not hot-updatable).
type EnvConfig struct {
	// Paths
	ConfigFile string

	// Network
	ListenAddress string
	Port          int

	// Core
	Environment              string
	RequestTimeout           time.Duration
	APIMaxBodyBytes          int
	QuoteCacheCapacity       int
	SymbolMapRefreshSchedule string

	// Streaming
	StreamWriteBatchSize     int
	StreamWriteFlushInterval time.Duration
	SubscribeCoalesceWindow  time.Duration
}

// Debug reports whether debug logging is enabled.
func (c *EnvConfig) Debug() bool {
	return c.Environment == "development"
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any value is invalid; all problems are collected and
// reported together.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.ConfigFile = envStr("QUOTEFEED_CONFIG_FILE", "config.yaml")
	cfg.ListenAddress = strings.TrimSpace(envStr("QUOTEFEED_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("QUOTEFEED_PORT", 8080, &errs)

	cfg.Environment = envStr("QUOTEFEED_ENVIRONMENT", "production")
	cfg.RequestTimeout = envDuration("QUOTEFEED_REQUEST_TIMEOUT", 10*time.Second, &errs)
	cfg.APIMaxBodyBytes = envInt("QUOTEFEED_API_MAX_BODY_BYTES", 1<<20, &errs)
	cfg.QuoteCacheCapacity = envInt("QUOTEFEED_QUOTE_CACHE_CAPACITY", 100_000, &errs)
	cfg.SymbolMapRefreshSchedule = envStr("QUOTEFEED_SYMBOL_MAP_REFRESH_SCHEDULE", "0 6 * * *")

	cfg.StreamWriteBatchSize = envInt("QUOTEFEED_STREAM_WRITE_BATCH_SIZE", 256, &errs)
	cfg.StreamWriteFlushInterval = envDuration("QUOTEFEED_STREAM_WRITE_FLUSH_INTERVAL", 200*time.Millisecond, &errs)
	cfg.SubscribeCoalesceWindow = envDuration("QUOTEFEED_SUBSCRIBE_COALESCE_WINDOW", 100*time.Millisecond, &errs)

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "QUOTEFEED_LISTEN_ADDRESS must not be empty")
	}
	validatePort("QUOTEFEED_PORT", cfg.Port, &errs)
	validatePositive("QUOTEFEED_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("QUOTEFEED_QUOTE_CACHE_CAPACITY", cfg.QuoteCacheCapacity, &errs)
	validatePositive("QUOTEFEED_STREAM_WRITE_BATCH_SIZE", cfg.StreamWriteBatchSize, &errs)
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, "QUOTEFEED_REQUEST_TIMEOUT must be positive")
	}
	if cfg.StreamWriteFlushInterval <= 0 {
		errs = append(errs, "QUOTEFEED_STREAM_WRITE_FLUSH_INTERVAL must be positive")
	}
	if cfg.SubscribeCoalesceWindow <= 0 {
		errs = append(errs, "QUOTEFEED_SUBSCRIBE_COALESCE_WINDOW must be positive")
	}
	if _, err := cron.ParseStandard(cfg.SymbolMapRefreshSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTEFEED_SYMBOL_MAP_REFRESH_SCHEDULE: invalid cron expression %q: %v", cfg.SymbolMapRefreshSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
