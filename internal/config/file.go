package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StreamOptions configures the WebSocket behavior of a streaming source.
// AutoReconnect is a pointer so that absence defaults to reconnecting,
// while an explicit false pins the connection to a single attempt.
type StreamOptions struct {
	AutoReconnect        *bool    `yaml:"auto_reconnect"`
	ReconnectInterval    Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	HeartbeatInterval    Duration `yaml:"heartbeat_interval"`
	BatchSize            int      `yaml:"batch_size"`
	RateLimitPerInterval int      `yaml:"rate_limit_per_interval"`
	RateLimitInterval    Duration `yaml:"rate_limit_interval"`
}

// Reconnect reports whether the stream should be re-established after a
// drop. Defaults to true when auto_reconnect is omitted.
func (st *StreamOptions) Reconnect() bool {
	return st.AutoReconnect == nil || *st.AutoReconnect
}

// SourceConfig holds the per-source tuning knobs consumed by the core.
// RPS is a pointer so that absence (nil) disables rate limiting, matching
// the "null disables" file convention.
type SourceConfig struct {
	Enabled       bool           `yaml:"enabled"`
	TTL           Duration       `yaml:"ttl"`
	Timeout       Duration       `yaml:"timeout"`
	RPS           *float64       `yaml:"rps"`
	MaxConcurrent int            `yaml:"max_concurrent"`
	MaxRetries    int            `yaml:"max_retries"`
	UseProxy      bool           `yaml:"use_proxy"`
	ProxyURL      string         `yaml:"proxy_url"`
	Refetch       bool           `yaml:"refetch"`
	APIKey        string         `yaml:"api_key"`
	MaxBatchSize  int            `yaml:"max_batch_size"`
	// BaseURL overrides the adapter's upstream URL, for API-compatible
	// gateways or local stubs. Empty means the provider's public endpoint.
	BaseURL string         `yaml:"base_url"`
	Stream  *StreamOptions `yaml:"stream"`
}

// FileConfig is the parsed YAML configuration file.
type FileConfig struct {
	Sources map[string]SourceConfig `yaml:"sources"`
}

// DefaultSourceConfig returns the baseline applied before per-source
// overrides from the file.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Enabled:       false,
		TTL:           Duration(10 * time.Second),
		Timeout:       Duration(5 * time.Second),
		MaxConcurrent: 4,
		MaxRetries:    2,
	}
}

// LoadFileConfig reads and validates the YAML source configuration.
// Source-name validity is checked by the source registry at startup; here
// only value bounds are enforced. Problems are collected and reported
// together, one per line.
func LoadFileConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &FileConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var errs []string
	for name, sc := range cfg.Sources {
		applyDefaults(&sc)
		validateSourceConfig(name, sc, &errs)
		cfg.Sources[name] = sc
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

func applyDefaults(sc *SourceConfig) {
	def := DefaultSourceConfig()
	if sc.TTL == 0 {
		sc.TTL = def.TTL
	}
	if sc.Timeout == 0 {
		sc.Timeout = def.Timeout
	}
	if sc.MaxConcurrent == 0 {
		sc.MaxConcurrent = def.MaxConcurrent
	}
	if sc.Stream != nil {
		st := sc.Stream
		if st.ReconnectInterval == 0 {
			st.ReconnectInterval = Duration(5 * time.Second)
		}
		if st.MaxReconnectAttempts == 0 {
			st.MaxReconnectAttempts = 10
		}
		if st.HeartbeatInterval == 0 {
			st.HeartbeatInterval = Duration(30 * time.Second)
		}
	}
}

func validateSourceConfig(name string, sc SourceConfig, errs *[]string) {
	if sc.TTL.Std() < time.Second {
		*errs = append(*errs, fmt.Sprintf("%s: ttl must be >= 1s, got %s", name, sc.TTL.Std()))
	}
	if sc.Timeout.Std() < time.Second {
		*errs = append(*errs, fmt.Sprintf("%s: timeout must be >= 1s, got %s", name, sc.Timeout.Std()))
	}
	if sc.MaxConcurrent < 1 {
		*errs = append(*errs, fmt.Sprintf("%s: max_concurrent must be >= 1, got %d", name, sc.MaxConcurrent))
	}
	if sc.MaxRetries < 0 || sc.MaxRetries > 10 {
		*errs = append(*errs, fmt.Sprintf("%s: max_retries must be 0-10, got %d", name, sc.MaxRetries))
	}
	if sc.RPS != nil && *sc.RPS < 0 {
		*errs = append(*errs, fmt.Sprintf("%s: rps must be positive or null, got %v", name, *sc.RPS))
	}
	if sc.MaxBatchSize < 0 {
		*errs = append(*errs, fmt.Sprintf("%s: max_batch_size must be >= 0, got %d", name, sc.MaxBatchSize))
	}
	if st := sc.Stream; st != nil {
		if st.RateLimitPerInterval > 0 && st.RateLimitInterval.Std() <= 0 {
			*errs = append(*errs, fmt.Sprintf("%s: stream.rate_limit_interval required when rate_limit_per_interval is set", name))
		}
		if st.BatchSize < 0 {
			*errs = append(*errs, fmt.Sprintf("%s: stream.batch_size must be >= 0, got %d", name, st.BatchSize))
		}
	}
}
