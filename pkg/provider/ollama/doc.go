// Package ollama implements the provider adapter for Ollama-style backends.
// Streaming responses are newline-delimited JSON objects from /api/chat with
// a boolean completion flag; there is no sentinel frame.
package ollama
