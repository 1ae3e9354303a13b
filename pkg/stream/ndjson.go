package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NDJSONBuffer reassembles line-delimited JSON frames from arbitrarily
// chunked text. Each physical line is a candidate for one complete JSON
// value; a line that does not parse on its own is not discarded but
// concatenated with the following line(s) until the combined text parses or
// the maximum buffer size is exceeded. This handles backends that split one
// JSON object across physical lines.
type NDJSONBuffer struct {
	rest     string // text since the last newline
	partial  string // physical lines accumulated toward one JSON value
	maxBytes int
}

var _ FrameBuffer = (*NDJSONBuffer)(nil)

// NewNDJSONBuffer creates an NDJSONBuffer with the given maximum buffered
// frame size. maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewNDJSONBuffer(maxBytes int) *NDJSONBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &NDJSONBuffer{maxBytes: maxBytes}
}

// Push appends text and returns every complete JSON frame it terminates.
func (b *NDJSONBuffer) Push(text string) ([]Frame, error) {
	b.rest += text

	var frames []Frame
	for {
		i := strings.IndexByte(b.rest, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(b.rest[:i], "\r")
		b.rest = b.rest[i+1:]

		if line == "" && b.partial == "" {
			continue
		}

		if b.partial == "" {
			b.partial = line
		} else {
			// A raw newline is JSON whitespace, so rejoining with one
			// preserves the original byte stream's meaning.
			b.partial += "\n" + line
		}

		if json.Valid([]byte(b.partial)) {
			frames = append(frames, Frame{Data: b.partial, HasData: true, Raw: b.partial})
			b.partial = ""
		}
	}

	if len(b.partial)+len(b.rest) > b.maxBytes {
		b.partial = ""
		b.rest = ""
		return frames, NewError(KindFrameTooLarge,
			fmt.Sprintf("object exceeds maximum frame size of %d bytes without parsing", b.maxBytes),
			false)
	}

	return frames, nil
}

// Finish flushes the buffer at end of stream. A final object without a
// trailing newline is accepted; leftover text that still does not parse is
// a malformed payload, never a silent skip.
func (b *NDJSONBuffer) Finish() ([]Frame, error) {
	tail := b.partial
	if b.rest != "" {
		if tail == "" {
			tail = strings.TrimSuffix(b.rest, "\r")
		} else {
			tail += "\n" + strings.TrimSuffix(b.rest, "\r")
		}
	}
	b.partial = ""
	b.rest = ""

	if strings.TrimSpace(tail) == "" {
		return nil, nil
	}
	if json.Valid([]byte(tail)) {
		return []Frame{{Data: tail, HasData: true, Raw: tail}}, nil
	}
	return nil, NewError(KindMalformedPayload,
		fmt.Sprintf("stream ended with %d bytes of unparseable JSON", len(tail)),
		false)
}
