package engine

import "github.com/sluice-dev/sluice/pkg/retry"

// Config holds configuration for the core engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	// Empty string means a model is always required in the request.
	DefaultModel string

	// Retry governs backend attempts before the first outward byte.
	// The zero value falls back to retry.DefaultPolicy.
	Retry retry.Policy

	// EstimateUsage enables token counting for streams whose backend
	// did not report usage.
	EstimateUsage bool
}

// retryPolicy returns the effective policy, defaulting when unset.
func (c Config) retryPolicy() retry.Policy {
	if c.Retry.MaxAttempts <= 0 {
		return retry.DefaultPolicy()
	}
	return c.Retry
}
