package openai

import (
	"encoding/json"
	"strings"

	"github.com/sluice-dev/sluice/pkg/stream"
)

// doneSentinel terminates an SSE chat completion stream.
const doneSentinel = "[DONE]"

// Parser converts the SSE frames of one chat completion stream into
// canonical events. It is stateful because the wire protocol spreads
// completion across frames: with stream_options.include_usage the backend
// sends the finish chunk, then a separate usage-only chunk, and only then
// the [DONE] sentinel. The finish reason is recorded when it arrives and
// attached to the Done event emitted on the sentinel, so usage delivered
// between the two is never cut off.
type Parser struct {
	finishReason string
	sawFinish    bool
}

// NewParser creates a Parser for one streaming response.
func NewParser() *Parser { return &Parser{} }

// Parse turns one complete SSE frame into canonical stream events.
// Frames without a data payload (comments, unknown fields, backend
// extensions) produce no events and are never an error. A structurally
// invalid payload maps to a terminal malformed_backend_payload event; it is
// never silently swallowed.
func (p *Parser) Parse(f stream.Frame) []stream.Event {
	if !f.HasData {
		return nil
	}

	payload := strings.TrimSpace(f.Data)
	if payload == doneSentinel {
		// The sentinel is matched directly, never parsed as JSON.
		done := stream.Event{Type: stream.EventDone}
		if p.sawFinish {
			done.FinishReason = p.finishReason
		}
		return []stream.Event{done}
	}

	var chunk chatChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return []stream.Event{stream.ErrorEvent(stream.NewError(
			stream.KindMalformedPayload,
			"undecodable chat completion chunk: "+err.Error(),
			false))}
	}

	if chunk.Error != nil {
		return []stream.Event{stream.ErrorEvent(stream.NewError(
			stream.KindProviderReported,
			chunk.Error.Message,
			false))}
	}

	var events []stream.Event

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.FinishReason != nil {
			p.sawFinish = true
			p.finishReason = *choice.FinishReason
		}

		if choice.Delta.Content != "" || choice.Delta.Role != "" {
			events = append(events, stream.Event{
				Type:    stream.EventDelta,
				Role:    choice.Delta.Role,
				Content: choice.Delta.Content,
				Index:   choice.Index,
			})
		}
	}

	if chunk.Usage != nil {
		events = append(events, stream.Event{Type: stream.EventUsage, Usage: chunk.Usage})
	}

	return events
}
