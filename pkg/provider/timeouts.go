package provider

import (
	"net"
	"net/http"
	"time"
)

// Timeouts differentiates the phases of a backend call. A streaming
// response may legitimately take minutes to complete, so there is no
// overall deadline on the streaming path: connect, time-to-first-byte, and
// per-chunk stall are bounded separately, and the request context governs
// total lifetime.
type Timeouts struct {
	// Connect bounds TCP connection establishment.
	Connect time.Duration

	// FirstByte bounds the wait for the backend's response headers. It can
	// be longer than Connect since generation may be slow to start.
	FirstByte time.Duration

	// Stall bounds the gap between consecutive chunks of a streaming
	// response, detecting a backend that started but stopped producing.
	Stall time.Duration

	// Request is the overall deadline for non-streaming calls.
	Request time.Duration
}

// DefaultTimeouts returns the timeout set used when configuration does not
// override it.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:   5 * time.Second,
		FirstByte: 60 * time.Second,
		Stall:     30 * time.Second,
		Request:   120 * time.Second,
	}
}

// NewTransport builds the pooled HTTP transport shared by all requests to
// one backend. Check-out/check-in of pooled connections is handled by
// net/http; no request ever holds an exclusive lock on the pool.
func NewTransport(t Timeouts) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   t.Connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: t.FirstByte,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
