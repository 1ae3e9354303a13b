package api

import "time"

// RequestContext is the immutable per-request metadata threaded by pointer
// through every pipeline stage. It is created once at request entry and never
// mutated afterward, so concurrent reads need no synchronization.
type RequestContext struct {
	// RequestID correlates logs, metrics, and error responses.
	RequestID string

	// Subject and Tenant identify the authenticated caller.
	Subject string
	Tenant  string

	// Model is the client-requested model identifier.
	Model string

	// Backend is the name of the backend chosen to serve the request.
	Backend string

	// Stream indicates whether the client requested a streaming response.
	Stream bool

	// Deadline is the absolute deadline for the whole exchange
	// (zero means none).
	Deadline time.Time

	// StartedAt marks request entry, used for latency accounting.
	StartedAt time.Time
}
