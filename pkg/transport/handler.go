package transport

import (
	"context"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// ChatCompleter handles the core chat-completion operation. The
// implementation receives a request and writes the result (streaming chunks
// or a complete response) to the ResponseWriter.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error
}

// ChatCompleterFunc is an adapter that allows using an ordinary function
// as a ChatCompleter.
type ChatCompleterFunc func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error

// ChatCompletion calls f(ctx, req, w).
func (f ChatCompleterFunc) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ModelCatalog lists the models served through the gateway.
type ModelCatalog interface {
	ListModels(ctx context.Context) (*api.ModelList, error)
}

// Embedder serves embeddings requests.
type Embedder interface {
	Embeddings(ctx context.Context, req *api.EmbeddingsRequest) (*api.EmbeddingsResponse, error)
}

// ResponseWriter abstracts streaming and non-streaming output for the
// handler. The transport layer creates a ResponseWriter for each request
// and provides it to the handler.
//
// WriteChunk/WriteError/WriteDone form the streaming surface and are
// mutually exclusive with WriteCompletion on a single writer instance.
// After WriteDone or WriteError the writer is completed and rejects
// further writes; an error frame is never followed by the [DONE] sentinel.
type ResponseWriter interface {
	// WriteChunk sends a single chat.completion.chunk SSE frame.
	WriteChunk(chunk *api.ChatCompletionChunk) error

	// WriteError sends the single in-stream error frame of a failed
	// stream and completes the writer.
	WriteError(serr *stream.StreamError) error

	// WriteDone sends the [DONE] sentinel and completes the writer.
	WriteDone() error

	// WriteCompletion sends a complete non-streaming JSON response.
	WriteCompletion(resp *api.ChatCompletion) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
