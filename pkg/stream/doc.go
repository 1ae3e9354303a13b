// Package stream implements the byte-level framing layer of the gateway's
// streaming pipeline: incremental UTF-8 decoding, frame reassembly for
// event-delimited (SSE) and line-delimited (NDJSON) backend formats, the
// canonical stream event model, and the stream error taxonomy.
//
// Correctness here depends on framing guarantees that only matter under
// adversarial chunking: a backend may split a multi-byte character, a JSON
// object, or an SSE frame at any byte boundary, and the pipeline must
// reassemble them without losing or duplicating data. Nothing in this
// package performs I/O; all types are fed text or bytes by their caller
// and are exclusively owned by one request's pipeline instance.
package stream
