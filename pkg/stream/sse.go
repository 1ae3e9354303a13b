package stream

import (
	"fmt"
	"strings"
)

// SSEBuffer reassembles event-delimited (Server-Sent Events style) frames
// from arbitrarily chunked text. One frame is one event: the lines up to a
// blank line. CRLF line endings are normalized to LF, including a CR/LF pair
// split across two pushes.
type SSEBuffer struct {
	rest      string
	pendingCR bool
	maxBytes  int
}

var _ FrameBuffer = (*SSEBuffer)(nil)

// NewSSEBuffer creates an SSEBuffer with the given maximum buffered frame
// size. maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewSSEBuffer(maxBytes int) *SSEBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &SSEBuffer{maxBytes: maxBytes}
}

// Push appends text and returns every complete event frame it terminates.
// The remainder (possibly empty) stays buffered for the next push.
func (b *SSEBuffer) Push(text string) ([]Frame, error) {
	if b.pendingCR {
		text = "\r" + text
		b.pendingCR = false
	}
	if strings.HasSuffix(text, "\r") {
		text = text[:len(text)-1]
		b.pendingCR = true
	}
	b.rest += strings.ReplaceAll(text, "\r\n", "\n")

	var frames []Frame
	for {
		i := strings.Index(b.rest, "\n\n")
		if i < 0 {
			break
		}
		raw := b.rest[:i]
		b.rest = b.rest[i+2:]
		if raw == "" {
			// Extra blank lines between events carry nothing.
			continue
		}
		frames = append(frames, parseSSEFrame(raw))
	}

	if len(b.rest) > b.maxBytes {
		b.rest = ""
		return frames, NewError(KindFrameTooLarge,
			fmt.Sprintf("event exceeds maximum frame size of %d bytes without a delimiter", b.maxBytes),
			false)
	}

	return frames, nil
}

// Finish flushes the buffer at end of stream. Backends normally terminate
// the last event with a blank line, but a stream that ends right after a
// complete event body is accepted as a final frame.
func (b *SSEBuffer) Finish() ([]Frame, error) {
	rest := strings.TrimRight(b.rest, "\n")
	b.rest = ""
	b.pendingCR = false
	if rest == "" {
		return nil, nil
	}
	return []Frame{parseSSEFrame(rest)}, nil
}

// parseSSEFrame extracts the data payload from one raw event. Multiple data
// lines are joined with a newline, per the SSE dispatch rules. Lines with
// any other field name (event:, id:, retry:, comments) or no known prefix
// are preserved in Raw but contribute no payload.
func parseSSEFrame(raw string) Frame {
	var data []string
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "data: "):
			data = append(data, line[len("data: "):])
		case strings.HasPrefix(line, "data:"):
			data = append(data, line[len("data:"):])
		}
	}
	return Frame{
		Data:    strings.Join(data, "\n"),
		HasData: len(data) > 0,
		Raw:     raw,
	}
}
