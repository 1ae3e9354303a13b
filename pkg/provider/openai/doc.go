// Package openai implements the provider adapter for OpenAI-compatible
// Chat Completions backends (OpenAI, vLLM, LiteLLM, OpenRouter, and
// similar). Streaming responses use SSE frames with "data: " payloads and a
// "[DONE]" sentinel.
package openai
