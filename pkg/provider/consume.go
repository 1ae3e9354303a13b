package provider

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/sluice-dev/sluice/pkg/debug"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// readBufferSize is the read granularity for backend response bodies. The
// framing layer makes no alignment assumptions, so the size only affects
// syscall frequency.
const readBufferSize = 4096

// ParseFunc turns one complete frame into zero or more canonical events.
// Parsers never return an error: structurally invalid frames become a
// terminal Error event instead of being swallowed.
type ParseFunc func(stream.Frame) []stream.Event

// Consume drives the decode → frame → parse chain over a backend response
// body, sending canonical events on ch until a terminal event, a framing
// error, cancellation, or end of stream. It closes neither ch nor anything
// the caller owns except body, which it always closes before returning.
//
// A stall watchdog aborts the read when no bytes arrive within stall
// (zero disables it). Emission stops at the first terminal event; the
// remainder of the body is discarded.
func Consume(ctx context.Context, body io.ReadCloser, fb stream.FrameBuffer, parse ParseFunc, ch chan<- stream.Event, stall time.Duration) {
	defer body.Close()

	var stalled atomic.Bool
	var watchdog *time.Timer
	if stall > 0 {
		watchdog = time.AfterFunc(stall, func() {
			stalled.Store(true)
			body.Close()
		})
		defer watchdog.Stop()
	}

	var dec stream.Decoder

	// emit sends one event, reporting whether the stream is now terminal.
	emit := func(ev stream.Event) bool {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return true
		}
		return ev.Terminal()
	}

	emitFrames := func(frames []stream.Frame) bool {
		for _, f := range frames {
			if debug.TraceIsEnabled("stream") {
				debug.Raw("stream", f.Raw)
			}
			for _, ev := range parse(f) {
				if emit(ev) {
					return true
				}
			}
		}
		return false
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)

		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(stall)
			}
			frames, ferr := fb.Push(dec.Feed(buf[:n]))
			if emitFrames(frames) {
				return
			}
			if ferr != nil {
				emit(stream.ErrorEvent(retryClassify(ferr)))
				return
			}
		}

		if err == nil {
			continue
		}

		if err == io.EOF {
			// Flush the decoder first: an unterminated multi-byte tail is
			// an encoding error, never a silent drop.
			if derr := dec.Finish(); derr != nil {
				emit(stream.ErrorEvent(retryClassify(derr)))
				return
			}
			frames, ferr := fb.Finish()
			if emitFrames(frames) {
				return
			}
			if ferr != nil {
				emit(stream.ErrorEvent(retryClassify(ferr)))
				return
			}
			// The backend closed the stream without an explicit terminal
			// marker. That is a truncated stream, not a completion: the
			// connection may have dropped mid-response, so it stays
			// retryable.
			emit(stream.ErrorEvent(stream.NewError(stream.KindBackendNetwork,
				"stream ended without terminal marker", true)))
			return
		}

		if ctx.Err() != nil {
			// Client is gone; nobody is listening for an error event.
			return
		}

		if stalled.Load() {
			emit(stream.ErrorEvent(stream.NewError(stream.KindBackendNetwork,
				"backend stalled: no data within "+stall.String(), true)))
			return
		}

		emit(stream.ErrorEvent(retryClassify(err)))
		return
	}
}

// retryClassify adapts an error into a StreamError without importing the
// retry package (which imports this one's sibling types). Classified errors
// pass through; raw read failures become backend_network_error.
func retryClassify(err error) *stream.StreamError {
	if se, ok := stream.AsStreamError(err); ok {
		return se
	}
	return stream.NewError(stream.KindBackendNetwork,
		"backend read error: "+err.Error(), true)
}
