// Package config provides unified configuration for the sluice gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (SLUICE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the sluice gateway.
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Backends      map[string]BackendConfig `yaml:"backends"`
	Routing       RoutingConfig            `yaml:"routing"`
	Limits        LimitsConfig             `yaml:"limits"`
	Timeouts      TimeoutsConfig           `yaml:"timeouts"`
	Retry         RetryConfig              `yaml:"retry"`
	Auth          AuthConfig               `yaml:"auth"`
	Usage         UsageConfig              `yaml:"usage"`
	Observability ObservabilityConfig      `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `yaml:"port"`         // default: 8080
	ReadTimeout time.Duration `yaml:"read_timeout"` // default: 30s

	// WriteTimeout bounds the whole response write. Zero (the default)
	// means no deadline: streamed completions legitimately run for
	// minutes, bounded instead by the backend stall timeout.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 MiB
}

// BackendConfig describes one upstream inference backend.
type BackendConfig struct {
	// Format selects the wire protocol: "openai" (SSE chat completions)
	// or "ollama" (NDJSON /api/chat).
	Format string `yaml:"format" json:"format"`

	// BaseURL is the backend root, e.g. "https://api.openai.com" or
	// "http://localhost:11434".
	BaseURL string `yaml:"base_url" json:"base_url"`

	APIKey     string `yaml:"api_key" json:"api_key"`           // optional for local backends
	APIKeyFile string `yaml:"api_key_file" json:"api_key_file"` // _file variant for api_key
}

// RoutingConfig maps models to backends.
type RoutingConfig struct {
	// Models routes a model identifier to a backend name.
	Models map[string]string `yaml:"models"`

	// Default is the backend serving models with no explicit route.
	// Empty means unrouted models are rejected.
	Default string `yaml:"default"`

	// DefaultModel is substituted when a request omits the model field.
	DefaultModel string `yaml:"default_model"`
}

// LimitsConfig bounds per-request resource use.
type LimitsConfig struct {
	// MaxFrameBytes caps a single backend stream frame. A frame that
	// exceeds it terminates the stream with frame_too_large.
	// Default: 1 MiB.
	MaxFrameBytes int `yaml:"max_frame_bytes"`
}

// TimeoutsConfig differentiates the phases of a backend call.
type TimeoutsConfig struct {
	Connect   time.Duration `yaml:"connect"`    // default: 5s
	FirstByte time.Duration `yaml:"first_byte"` // default: 60s
	Stall     time.Duration `yaml:"stall"`      // default: 30s
	Request   time.Duration `yaml:"request"`    // default: 120s, non-streaming only
}

// RetryConfig bounds backend attempts before the first outward byte.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // default: 3
	BaseDelay   time.Duration `yaml:"base_delay"`   // default: 250ms
	MaxDelay    time.Duration `yaml:"max_delay"`    // default: 5s
	Jitter      float64       `yaml:"jitter"`       // default: 0.2
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt

	// RateLimitRPM caps authenticated requests per subject per minute.
	// Zero disables rate limiting.
	RateLimitRPM int `yaml:"rate_limit_rpm"`
}

// APIKeyConfig describes a single API key entry. Keys are stored as
// argon2id hashes, never in the clear.
type APIKeyConfig struct {
	Hash     string `yaml:"hash" json:"hash"`
	HashFile string `yaml:"hash_file" json:"hash_file"` // _file variant for hash
	Subject  string `yaml:"subject" json:"subject"`
	Tenant   string `yaml:"tenant" json:"tenant"`
}

// JWTConfig holds HS256 bearer token settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`      // optional expected issuer
	Audience   string `yaml:"audience"`    // optional expected audience
}

// UsageConfig controls token accounting.
type UsageConfig struct {
	// EstimateTokens enables tiktoken-based usage estimation when a
	// backend finishes without reporting usage.
	EstimateTokens bool `yaml:"estimate_tokens"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Limits: LimitsConfig{
			MaxFrameBytes: 1 << 20,
		},
		Timeouts: TimeoutsConfig{
			Connect:   5 * time.Second,
			FirstByte: 60 * time.Second,
			Stall:     30 * time.Second,
			Request:   120 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Jitter:      0.2,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
