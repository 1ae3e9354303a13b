package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// At least one backend is required.
	if len(c.Backends) == 0 {
		errs = append(errs, fmt.Errorf("backends: at least one backend is required"))
	}

	for name, b := range c.Backends {
		switch b.Format {
		case "openai", "ollama":
			// valid
		default:
			errs = append(errs, fmt.Errorf("backends.%s.format must be \"openai\" or \"ollama\", got %q", name, b.Format))
		}
		if b.BaseURL == "" {
			errs = append(errs, fmt.Errorf("backends.%s.base_url is required", name))
		}
	}

	// Routing targets must exist.
	if c.Routing.Default != "" {
		if _, ok := c.Backends[c.Routing.Default]; !ok {
			errs = append(errs, fmt.Errorf("routing.default references unknown backend %q", c.Routing.Default))
		}
	}
	for model, backend := range c.Routing.Models {
		if _, ok := c.Backends[backend]; !ok {
			errs = append(errs, fmt.Errorf("routing.models[%q] references unknown backend %q", model, backend))
		}
	}

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// limits.max_frame_bytes must be positive.
	if c.Limits.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_frame_bytes must be > 0, got %d", c.Limits.MaxFrameBytes))
	}

	// retry.max_attempts must be at least 1.
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}

	// auth.type must be a known value with its required settings.
	switch c.Auth.Type {
	case "none":
		// valid
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Hash == "" && k.HashFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].hash or hash_file is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	return errors.Join(errs...)
}
