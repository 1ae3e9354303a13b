package stream

// DefaultMaxFrameBytes bounds frame buffer growth when no delimiter is
// found. Exceeding it is a fatal frame_too_large error: a misbehaving
// backend must not grow gateway memory without bound.
const DefaultMaxFrameBytes = 1 << 20 // 1 MiB

// A Frame is one complete syntactic unit of a backend wire format: one SSE
// event or one NDJSON object. Frames that carry no recognized payload are
// passed through with HasData=false rather than dropped, so unknown backend
// extensions degrade to a no-op instead of data loss.
type Frame struct {
	// Data is the frame payload: the joined data-line content of an SSE
	// event, or the complete JSON text of an NDJSON object.
	Data string

	// HasData reports whether the frame carried a recognized payload.
	HasData bool

	// Raw preserves the complete frame text for pass-through and logging.
	Raw string
}

// FrameBuffer accumulates decoded text until complete frames are available.
// Both the SSE and NDJSON buffers implement it.
type FrameBuffer interface {
	// Push appends text and returns all frames completed by it. A
	// frame_too_large error is fatal for the stream.
	Push(text string) ([]Frame, error)

	// Finish flushes the buffer at end of stream, returning any final
	// frame the backend did not terminate explicitly. Leftover text that
	// cannot form a frame is a malformed payload error.
	Finish() ([]Frame, error)
}
