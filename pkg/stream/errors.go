package stream

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable classification of a stream failure. The kind is
// exposed to clients as the error code and drives the retry decision.
type ErrorKind string

const (
	// KindEncodingError: the backend stream ended in the middle of a
	// multi-byte character.
	KindEncodingError ErrorKind = "encoding_error"

	// KindFrameTooLarge: the frame buffer grew past its configured maximum
	// without finding a frame delimiter.
	KindFrameTooLarge ErrorKind = "frame_too_large"

	// KindMalformedPayload: a complete, decodable frame was structurally
	// invalid for the backend's format.
	KindMalformedPayload ErrorKind = "malformed_backend_payload"

	// KindProviderReported: the backend explicitly signaled a failure
	// in-band (an error object inside the stream).
	KindProviderReported ErrorKind = "provider_reported_error"

	// KindBackendHTTP: the backend's request/response exchange failed with
	// a status code.
	KindBackendHTTP ErrorKind = "backend_http_error"

	// KindBackendNetwork: transport-level failure (connection reset, DNS,
	// timeout).
	KindBackendNetwork ErrorKind = "backend_network_error"

	// KindRetryExhausted: the retry budget ran out before an attempt
	// succeeded.
	KindRetryExhausted ErrorKind = "retry_budget_exhausted"
)

// A StreamError is a classified stream failure. An unclassified failure must
// never be silently mapped to a catch-all: callers that cannot classify an
// error wrap it with Classify-style helpers and mark it non-retryable.
type StreamError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool

	// Attempts carries the cumulative attempt count when the retry budget
	// was exhausted.
	Attempts int
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s: %s (after %d attempts)", e.Kind, e.Message, e.Attempts)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a StreamError with the given kind and message.
func NewError(kind ErrorKind, message string, retryable bool) *StreamError {
	return &StreamError{Kind: kind, Message: message, Retryable: retryable}
}

// AsStreamError extracts a StreamError from an error chain.
func AsStreamError(err error) (*StreamError, bool) {
	var se *StreamError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
