// Package engine implements the core orchestration logic for Sluice.
// The Engine struct implements transport.ChatCompleter, bridging incoming
// Chat Completions requests to provider backends. It resolves the backend
// for a model, translates the request to provider form, drives the
// streaming pipeline or the non-streaming completion path, and records
// per-backend metrics. Usage estimation is nil-safe: without an estimator
// the gateway simply forwards whatever the backend reports.
package engine
