// Package transport defines the handler interfaces and middleware chain for
// the sluice HTTP/SSE transport layer.
//
// The transport layer bridges external clients and the gateway engine. It
// deserializes incoming requests into the protocol types defined in pkg/api,
// dispatches them for processing, and serializes responses back to the
// client in either synchronous (JSON) or streaming (SSE) format.
//
// # Handler Interfaces
//
// ChatCompleter is the primary handler contract: the engine receives a
// chat-completion request and writes the result (streaming chunks or a
// complete JSON body) to the ResponseWriter. ModelCatalog and Embedder
// cover the auxiliary read-only endpoints.
//
// The ResponseWriter interface abstracts streaming and non-streaming
// output, allowing the handler to emit SSE chunks or complete JSON
// responses without knowing the underlying transport protocol.
//
// # Middleware
//
// The middleware chain wraps ChatCompleter with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Custom middleware
// can be added for application-specific concerns.
package transport
