package ollama

import (
	"encoding/json"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// ParseFrame turns one complete NDJSON object into canonical stream events.
// The boolean completion flag maps to Done; embedded token counts on the
// final object map to a Usage event emitted before it. A structurally
// invalid object maps to a terminal malformed_backend_payload event.
func ParseFrame(f stream.Frame) []stream.Event {
	if !f.HasData {
		return nil
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
		return []stream.Event{stream.ErrorEvent(stream.NewError(
			stream.KindMalformedPayload,
			"undecodable chat object: "+err.Error(),
			false))}
	}

	if chunk.Error != "" {
		return []stream.Event{stream.ErrorEvent(stream.NewError(
			stream.KindProviderReported,
			chunk.Error,
			false))}
	}

	var events []stream.Event

	if chunk.Message.Content != "" || (chunk.Message.Role != "" && !chunk.Done) {
		events = append(events, stream.Event{
			Type:    stream.EventDelta,
			Role:    chunk.Message.Role,
			Content: chunk.Message.Content,
		})
	}

	if chunk.Done {
		if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
			events = append(events, stream.Event{
				Type: stream.EventUsage,
				Usage: &api.Usage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				},
			})
		}
		reason := chunk.DoneReason
		if reason == "" {
			reason = "stop"
		}
		events = append(events, stream.Event{Type: stream.EventDone, FinishReason: reason})
	}

	return events
}
