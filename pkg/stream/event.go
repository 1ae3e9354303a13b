package stream

import "github.com/sluice-dev/sluice/pkg/api"

// EventType classifies a canonical stream event.
type EventType int

const (
	EventDelta EventType = iota // incremental content
	EventUsage                  // token accounting
	EventDone                   // normal stream completion
	EventError                  // terminal stream failure
)

// String returns the event type name for logs.
func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventUsage:
		return "usage"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the backend-agnostic representation of one unit of stream
// progress. Exactly one Event flows through the pipeline per backend-reported
// unit. After a Done or Error event the stream is terminal: no further Delta
// or Usage events may follow.
type Event struct {
	// Type indicates what kind of event this is.
	Type EventType

	// Role and Content are populated for Delta events. Role is usually only
	// present on the first delta of a message.
	Role    string
	Content string

	// Index is the choice index this delta belongs to.
	Index int

	// Usage is populated for Usage events.
	Usage *api.Usage

	// FinishReason is populated for Done events ("stop", "length", ...).
	FinishReason string

	// Err is populated for Error events.
	Err *StreamError
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// ErrorEvent wraps a StreamError into a terminal Event.
func ErrorEvent(err *StreamError) Event {
	return Event{Type: EventError, Err: err}
}
