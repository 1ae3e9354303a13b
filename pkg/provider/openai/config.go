package openai

import "github.com/sluice-dev/sluice/pkg/provider"

// Config holds configuration for the OpenAI-compatible adapter.
type Config struct {
	// BaseURL is the backend root (e.g. "https://api.openai.com" or a
	// vLLM server URL); the adapter appends /v1/... paths.
	BaseURL string

	// APIKey for backend authentication (optional for local backends).
	APIKey string

	// Timeouts for the connection phases. Zero fields take defaults.
	Timeouts provider.Timeouts

	// MaxFrameBytes bounds the streaming frame buffer. Zero selects the
	// package default.
	MaxFrameBytes int
}
