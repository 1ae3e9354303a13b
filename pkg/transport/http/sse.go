package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/stream"
	"github.com/sluice-dev/sluice/pkg/transport"
)

// writerState tracks the state of an SSE ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteChunk has been called at least once
	writerCompleted                    // Terminal frame sent or WriteCompletion called
)

// sseResponseWriter implements transport.ResponseWriter for HTTP/SSE
// responses. It handles both streaming (SSE) and non-streaming (JSON)
// output and enforces the terminal frame discipline: exactly one of
// [DONE] or an error frame ends the stream, and nothing follows either.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState

	// requestID is stamped onto in-stream error frames.
	requestID string
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

// newSSEResponseWriter creates a new ResponseWriter wrapping an
// http.ResponseWriter.
func newSSEResponseWriter(w http.ResponseWriter, requestID string) *sseResponseWriter {
	return &sseResponseWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		requestID: requestID,
	}
}

// WriteChunk sends a single chunk as an SSE frame:
//
//	data: {json}\n
//	\n
func (s *sseResponseWriter) WriteChunk(chunk *api.ChatCompletionChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write chunk: writer is completed")
	}
	s.beginStreamingLocked()

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	return s.writeFrameLocked(data)
}

// WriteError sends the single in-stream error frame of a failed stream:
//
//	data: {"error":{...}}\n
//	\n
//
// The writer completes; no [DONE] sentinel may follow.
func (s *sseResponseWriter) WriteError(serr *stream.StreamError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write error frame: writer is completed")
	}
	s.beginStreamingLocked()

	apiErr := transport.APIErrorFromStream(serr)
	apiErr.RequestID = s.requestID
	data, err := json.Marshal(api.ErrorResponse{Error: apiErr})
	if err != nil {
		return fmt.Errorf("failed to marshal error frame: %w", err)
	}
	if werr := s.writeFrameLocked(data); werr != nil {
		return werr
	}
	s.state = writerCompleted
	return nil
}

// WriteDone sends the [DONE] sentinel and completes the writer.
func (s *sseResponseWriter) WriteDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write [DONE]: writer is completed")
	}
	s.beginStreamingLocked()

	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write [DONE]: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush [DONE]: %w", err)
	}
	s.state = writerCompleted
	return nil
}

// WriteCompletion sends a complete non-streaming JSON response.
// This is mutually exclusive with the streaming methods.
func (s *sseResponseWriter) WriteCompletion(resp *api.ChatCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStreaming {
		return errors.New("cannot write completion: streaming has already started")
	}
	if s.state == writerCompleted {
		return errors.New("cannot write completion: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(resp); err != nil {
		return fmt.Errorf("failed to encode completion: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// beginStreamingLocked sets SSE headers on the first streamed frame.
func (s *sseResponseWriter) beginStreamingLocked() {
	if s.state != writerIdle {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.state = writerStreaming
}

func (s *sseResponseWriter) writeFrameLocked(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// hasStartedStreaming returns true if at least one SSE frame has been written.
func (s *sseResponseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerStreaming ||
		(s.state == writerCompleted && s.w.Header().Get("Content-Type") == "text/event-stream")
}
