package stream

import (
	"fmt"
	"unicode/utf8"
)

// Decoder converts a sequence of raw byte fragments into a sequence of text
// fragments that never end in the middle of a multi-byte UTF-8 character.
// Up to utf8.UTFMax-1 trailing bytes of an incomplete sequence are carried
// between Feed calls.
//
// A Decoder is exclusively owned by one pipeline instance and is not safe
// for concurrent use.
type Decoder struct {
	pending [utf8.UTFMax - 1]byte
	n       int
}

// Feed prepends any buffered bytes to chunk, returns the longest prefix that
// does not end mid-character, and buffers the incomplete tail for the next
// call. Bytes that are definitively invalid UTF-8 (as opposed to a
// potentially valid incomplete sequence) are passed through unchanged so the
// downstream frame parser surfaces them as a malformed payload instead of
// the decoder silently dropping data.
func (d *Decoder) Feed(chunk []byte) string {
	if len(chunk) == 0 {
		return ""
	}

	var buf []byte
	if d.n > 0 {
		buf = make([]byte, 0, d.n+len(chunk))
		buf = append(buf, d.pending[:d.n]...)
		buf = append(buf, chunk...)
		d.n = 0
	} else {
		buf = chunk
	}

	cut := trailingIncomplete(buf)
	if cut > 0 {
		d.n = copy(d.pending[:], buf[len(buf)-cut:])
		buf = buf[:len(buf)-cut]
	}

	return string(buf)
}

// Finish flushes the decoder at end of stream. Any bytes still buffered are
// invalid by definition (the stream ended mid-character): this is an
// encoding error, never a silent drop.
func (d *Decoder) Finish() error {
	if d.n == 0 {
		return nil
	}
	tail := d.pending[:d.n]
	err := NewError(KindEncodingError,
		fmt.Sprintf("stream ended mid-character: %d undecoded trailing bytes (% x)", d.n, tail),
		false)
	d.n = 0
	return err
}

// Pending returns the number of bytes currently buffered. Used by tests and
// for lifecycle assertions.
func (d *Decoder) Pending() int {
	return d.n
}

// trailingIncomplete returns the length of an incomplete UTF-8 sequence at
// the end of b (0 if b ends on a character boundary or with bytes that can
// never form a valid character).
func trailingIncomplete(b []byte) int {
	n := len(b)
	for i := 1; i <= utf8.UTFMax && i <= n; i++ {
		c := b[n-i]
		if c < utf8.RuneSelf {
			// ASCII never participates in a multi-byte sequence.
			return 0
		}
		if c&0xC0 == 0x80 {
			// Continuation byte: keep walking back to the lead byte.
			continue
		}
		// Lead byte found i bytes from the end.
		if size := leadSize(c); size > i {
			return i
		}
		// Sequence is complete (or invalid, which passes through).
		return 0
	}
	// No lead byte within UTFMax bytes: invalid sequence, pass through.
	return 0
}

// leadSize returns the declared length of a UTF-8 sequence from its lead
// byte, or 1 for bytes that cannot start a multi-byte sequence.
func leadSize(c byte) int {
	switch {
	case c&0xE0 == 0xC0:
		return 2
	case c&0xF0 == 0xE0:
		return 3
	case c&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}
