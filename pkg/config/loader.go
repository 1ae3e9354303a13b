package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, SLUICE_CONFIG env, ./config.yaml, /etc/sluice/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. SLUICE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/sluice/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check SLUICE_CONFIG env var.
	if envPath := os.Getenv("SLUICE_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/sluice/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps SLUICE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLUICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SLUICE_DEFAULT_BACKEND"); v != "" {
		cfg.Routing.Default = v
	}
	if v := os.Getenv("SLUICE_DEFAULT_MODEL"); v != "" {
		cfg.Routing.DefaultModel = v
	}
	if v := os.Getenv("SLUICE_MAX_FRAME_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxFrameBytes = n
		}
	}
	if v := os.Getenv("SLUICE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("SLUICE_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("SLUICE_ESTIMATE_TOKENS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Usage.EstimateTokens = b
		}
	}

	// SLUICE_BACKENDS: JSON map of backend configs, for environments
	// where a config file is impractical.
	if v := os.Getenv("SLUICE_BACKENDS"); v != "" {
		backends, err := parseBackendsJSON(v)
		if err == nil && len(backends) > 0 {
			cfg.Backends = backends
		}
	}

	// SLUICE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("SLUICE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
}

// parseBackendsJSON parses a JSON map of backend configurations.
func parseBackendsJSON(jsonStr string) (map[string]BackendConfig, error) {
	var backends map[string]BackendConfig
	if err := json.Unmarshal([]byte(jsonStr), &backends); err != nil {
		return nil, fmt.Errorf("parsing backends JSON: %w", err)
	}
	return backends, nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. For each field ending in _file, if the value field is empty
// and the file field is set, the file is read, whitespace is trimmed, and
// the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// backends[*].api_key_file -> backends[*].api_key
	for name, b := range cfg.Backends {
		if b.APIKeyFile != "" && b.APIKey == "" {
			val, err := readSecretFile(b.APIKeyFile)
			if err != nil {
				return fmt.Errorf("backends.%s.api_key_file: %w", name, err)
			}
			b.APIKey = val
			cfg.Backends[name] = b
		}
	}

	// auth.api_keys[*].hash_file -> auth.api_keys[*].hash
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].HashFile != "" && cfg.Auth.APIKeys[i].Hash == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].HashFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].hash_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Hash = val
		}
	}

	// auth.jwt.secret_file -> auth.jwt.secret
	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
