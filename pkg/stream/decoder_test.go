package stream

import (
	"testing"
	"unicode/utf8"
)

const mixedText = "Hello, Привет! 👋 世界 🚀"

func TestDecoderEverySplitPoint(t *testing.T) {
	raw := []byte(mixedText)

	for split := 0; split <= len(raw); split++ {
		var d Decoder
		got := d.Feed(raw[:split]) + d.Feed(raw[split:])
		if err := d.Finish(); err != nil {
			t.Fatalf("split at %d: Finish() = %v, want nil", split, err)
		}
		if got != mixedText {
			t.Errorf("split at %d: reassembled %q, want %q", split, got, mixedText)
		}
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	raw := []byte(mixedText)

	var d Decoder
	var got string
	for i := range raw {
		frag := d.Feed(raw[i : i+1])
		// Emitted fragments must never end mid-character.
		if !utf8.ValidString(frag) {
			t.Fatalf("byte %d: fragment %q is not valid UTF-8", i, frag)
		}
		got += frag
	}
	if err := d.Finish(); err != nil {
		t.Fatalf("Finish() = %v, want nil", err)
	}
	if got != mixedText {
		t.Errorf("reassembled %q, want %q", got, mixedText)
	}
}

func TestDecoderFinishMidCharacter(t *testing.T) {
	// First three bytes of the four-byte rocket emoji.
	rocket := []byte("🚀")

	var d Decoder
	if frag := d.Feed(rocket[:3]); frag != "" {
		t.Errorf("Feed(partial rune) = %q, want empty", frag)
	}
	if d.Pending() != 3 {
		t.Errorf("Pending() = %d, want 3", d.Pending())
	}

	err := d.Finish()
	if err == nil {
		t.Fatal("Finish() with buffered partial rune should fail")
	}
	se, ok := AsStreamError(err)
	if !ok || se.Kind != KindEncodingError {
		t.Errorf("Finish() error = %v, want kind %s", err, KindEncodingError)
	}
	if se.Retryable {
		t.Error("encoding errors must not be retryable")
	}
}

func TestDecoderInvalidBytesPassThrough(t *testing.T) {
	// Definitively invalid bytes are forwarded, not buffered: only an
	// incomplete-but-potentially-valid tail may be held back, and only
	// Finish may declare a tail invalid.
	var d Decoder
	frag := d.Feed([]byte{'a', 0xFF, 'b'})
	if frag != string([]byte{'a', 0xFF, 'b'}) {
		t.Errorf("Feed() = %q, invalid byte was dropped or buffered", frag)
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish() = %v, want nil", err)
	}
}

func TestDecoderLoneContinuationBytes(t *testing.T) {
	var d Decoder
	frag := d.Feed([]byte{0x80, 0x81})
	if frag != string([]byte{0x80, 0x81}) {
		t.Errorf("Feed() = %q, want pass-through of stray continuation bytes", frag)
	}
}

func TestDecoderEmptyFeed(t *testing.T) {
	var d Decoder
	if frag := d.Feed(nil); frag != "" {
		t.Errorf("Feed(nil) = %q, want empty", frag)
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish() = %v, want nil", err)
	}
}

func TestDecoderThreeWaySplitInsideRune(t *testing.T) {
	raw := []byte("世") // 3 bytes

	var d Decoder
	got := d.Feed(raw[:1]) + d.Feed(raw[1:2]) + d.Feed(raw[2:])
	if got != "世" {
		t.Errorf("reassembled %q, want %q", got, "世")
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish() = %v, want nil", err)
	}
}
