package provider

import (
	"context"
	"encoding/json"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// Provider abstracts an LLM inference backend.
type Provider interface {
	// Name returns the backend identifier used in config routing.
	Name() string

	// Capabilities returns what this backend supports.
	Capabilities() Capabilities

	// Complete performs non-streaming inference. This path never touches
	// the framing pipeline.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs streaming inference. The returned channel receives
	// canonical stream events and is closed by the provider when the
	// stream completes, errors, or the context is cancelled. At most one
	// terminal event is sent.
	Stream(ctx context.Context, req *Request) (<-chan stream.Event, error)

	// Embeddings performs a non-streaming embeddings request. Backends
	// without embeddings support return an invalid-request error.
	Embeddings(ctx context.Context, req *api.EmbeddingsRequest) (*api.EmbeddingsResponse, error)

	// ListModels returns available models from the backend.
	ListModels(ctx context.Context) ([]api.Model, error)

	// Close releases backend resources (idle pooled connections).
	Close() error
}

// Capabilities declares what features a backend supports. Used by the
// engine for early request validation.
type Capabilities struct {
	Streaming  bool
	Embeddings bool
}

// Request is the backend-facing inference request, stripped of transport
// and authorization concerns.
type Request struct {
	Model            string
	Messages         []api.Message
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	Stop             []string
	FrequencyPenalty *float64
	PresencePenalty  *float64
	User             string
	Stream           bool

	// IncludeUsage asks the backend to report token usage on the final
	// streamed chunk where the protocol supports it.
	IncludeUsage bool

	// Extra holds fields that don't map to standard parameters, forwarded
	// to the backend unchanged.
	Extra map[string]json.RawMessage
}

// Response is the backend's complete non-streaming response.
type Response struct {
	Role         string
	Content      string
	FinishReason string
	Model        string
	Usage        *api.Usage
}
