package engine

import (
	"log/slog"
	"strings"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/pipeline"
	"github.com/sluice-dev/sluice/pkg/stream"
	"github.com/sluice-dev/sluice/pkg/tokenizer"
)

// estimatingWriter wraps the outward chunk writer and fills in a usage
// chunk when the backend reaches [DONE] without having reported usage.
// The synthetic chunk keeps the wire order: all deltas, the finish chunk,
// usage, then the terminal marker.
type estimatingWriter struct {
	inner     pipeline.ChunkWriter
	estimator *tokenizer.Estimator
	messages  []api.Message
	model     string
	logger    *slog.Logger

	content   strings.Builder
	lastChunk *api.ChatCompletionChunk
	sawUsage  bool
	estimated *api.Usage
}

func newEstimatingWriter(inner pipeline.ChunkWriter, est *tokenizer.Estimator, messages []api.Message, model string, logger *slog.Logger) *estimatingWriter {
	return &estimatingWriter{
		inner:     inner,
		estimator: est,
		messages:  messages,
		model:     model,
		logger:    logger,
	}
}

func (w *estimatingWriter) WriteChunk(chunk *api.ChatCompletionChunk) error {
	w.lastChunk = chunk
	if chunk.Usage != nil {
		w.sawUsage = true
	}
	for _, c := range chunk.Choices {
		w.content.WriteString(c.Delta.Content)
	}
	return w.inner.WriteChunk(chunk)
}

func (w *estimatingWriter) WriteError(serr *stream.StreamError) error {
	// A failed stream gets no usage accounting.
	return w.inner.WriteError(serr)
}

func (w *estimatingWriter) WriteDone() error {
	if !w.sawUsage && w.lastChunk != nil {
		usage, err := w.estimator.EstimateUsage(w.messages, w.content.String(), w.model)
		if err != nil {
			w.logger.Debug("usage estimation failed", "model", w.model, "error", err)
		} else {
			w.estimated = usage
			chunk := &api.ChatCompletionChunk{
				ID:      w.lastChunk.ID,
				Object:  "chat.completion.chunk",
				Created: w.lastChunk.Created,
				Model:   w.lastChunk.Model,
				Choices: []api.ChunkChoice{},
				Usage:   usage,
			}
			if err := w.inner.WriteChunk(chunk); err != nil {
				return err
			}
		}
	}
	return w.inner.WriteDone()
}

// Usage returns the estimate synthesized on WriteDone, or nil.
func (w *estimatingWriter) Usage() *api.Usage { return w.estimated }
