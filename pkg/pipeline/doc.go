// Package pipeline orchestrates one streaming completion: it drives a
// backend's canonical event channel, translates events into outward
// chat.completion.chunk payloads, applies the retry policy, and enforces
// the terminal-event discipline of the outward stream.
//
// The retry boundary is the first outward byte. Failures before any chunk
// has been written may be retried against the backend; once a chunk has
// reached the client the response is committed and a failure becomes an
// in-stream error frame instead.
package pipeline
