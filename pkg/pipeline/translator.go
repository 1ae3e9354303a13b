package pipeline

import (
	"log/slog"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// Translator converts canonical stream events into outward
// chat.completion.chunk payloads under a fixed response envelope. It is
// stateful: the first delta carries the assistant role, usage is held back
// until the finish chunk has been emitted, and nothing follows the finish
// sequence.
type Translator struct {
	id           string
	created      int64
	model        string
	includeUsage bool

	sentRole bool
	deltas   int
	index    int
	usage    *api.Usage
	finished bool
	reason   string
	dropped  int
}

// NewTranslator creates a Translator for one streaming response. The id,
// created timestamp, and model name form the envelope repeated on every
// chunk.
func NewTranslator(id string, created int64, model string, includeUsage bool) *Translator {
	return &Translator{id: id, created: created, model: model, includeUsage: includeUsage}
}

// Translate maps one canonical event to zero or more outward chunks.
// An event after the finish sequence is a contract violation by the caller;
// it is counted, logged, and dropped. Error events produce no chunks; the
// caller writes the error frame itself.
func (t *Translator) Translate(ev stream.Event) []*api.ChatCompletionChunk {
	if t.finished {
		t.dropped++
		slog.Warn("stream event after finish sequence",
			"id", t.id,
			"type", ev.Type.String())
		return nil
	}

	switch ev.Type {
	case stream.EventDelta:
		delta := api.Delta{Content: ev.Content}
		if !t.sentRole {
			delta.Role = ev.Role
			if delta.Role == "" {
				delta.Role = "assistant"
			}
			t.sentRole = true
		}
		t.deltas++
		t.index = ev.Index
		return []*api.ChatCompletionChunk{t.chunk(delta)}

	case stream.EventUsage:
		// Held back until Done so the usage chunk follows the finish
		// chunk, which is where clients expect it.
		t.usage = ev.Usage
		return nil

	case stream.EventDone:
		t.finished = true
		t.reason = ev.FinishReason
		if t.reason == "" {
			t.reason = "stop"
		}

		finish := t.chunk(api.Delta{})
		finish.Choices[0].FinishReason = &t.reason

		chunks := []*api.ChatCompletionChunk{finish}
		if t.includeUsage && t.usage != nil {
			usageChunk := &api.ChatCompletionChunk{
				ID:      t.id,
				Object:  "chat.completion.chunk",
				Created: t.created,
				Model:   t.model,
				Choices: []api.ChunkChoice{},
				Usage:   t.usage,
			}
			chunks = append(chunks, usageChunk)
		}
		return chunks
	}

	return nil
}

// ID returns the completion identifier on the envelope.
func (t *Translator) ID() string { return t.id }

// Usage returns the token accounting reported by the backend, if any.
func (t *Translator) Usage() *api.Usage { return t.usage }

// FinishReason returns the recorded finish reason, or "" while streaming.
func (t *Translator) FinishReason() string { return t.reason }

// Deltas returns how many content chunks have been produced.
func (t *Translator) Deltas() int { return t.deltas }

// Finished reports whether the finish sequence has been emitted.
func (t *Translator) Finished() bool { return t.finished }

// Dropped returns how many events arrived after the finish sequence.
func (t *Translator) Dropped() int { return t.dropped }

// Reset clears per-stream state so the translator can be reused for a
// retried attempt. The response envelope (id, created, model) is kept: the
// client must see one consistent completion identifier.
func (t *Translator) Reset() {
	t.sentRole = false
	t.deltas = 0
	t.index = 0
	t.usage = nil
	t.finished = false
	t.reason = ""
	t.dropped = 0
}

func (t *Translator) chunk(delta api.Delta) *api.ChatCompletionChunk {
	return &api.ChatCompletionChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []api.ChunkChoice{{Index: t.index, Delta: delta}},
	}
}
