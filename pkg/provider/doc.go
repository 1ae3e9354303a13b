// Package provider abstracts LLM inference backends. The interface is
// protocol-agnostic: each adapter handles its own backend family
// (OpenAI-style HTTP+SSE, Ollama-style HTTP+NDJSON) internally and emits
// canonical stream events.
//
// The backend-format variant is chosen statically per backend from
// configuration; adapters never sniff payload formats at runtime. The shared
// Consume loop drives the decode → frame → parse chain so every adapter gets
// the same byte-level framing guarantees under adversarial chunking.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// the pooled HTTP transport inside each adapter is the only state shared
// across requests.
package provider
