// Package api defines the outward protocol types for the sluice gateway.
//
// This package provides the OpenAI-compatible wire types the gateway exposes
// to clients: chat completion requests and responses, streaming chunks,
// embeddings, model listings, structured errors, and ID generation. It also
// defines RequestContext, the immutable per-request metadata threaded through
// every pipeline stage.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O. All types produce JSON compatible with the OpenAI Chat
// Completions wire format, enabling client library compatibility.
package api
