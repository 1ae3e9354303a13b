// Command mock-backend runs a deterministic inference backend for
// gateway testing. It speaks both wire formats the gateway consumes:
// OpenAI-style SSE on POST /v1/chat/completions and Ollama-style NDJSON
// on POST /api/chat.
//
// The requested model selects a behavior, so failure paths can be
// exercised without a real backend:
//
//	mock-model     - normal completion with usage
//	mock-no-usage  - completion that never reports usage
//	mock-torn      - SSE frames split at arbitrary byte boundaries
//	mock-503       - 503 before any byte (retryable)
//	mock-midfail   - a few deltas, then the connection drops
//	mock-slow      - 200ms pause between chunks
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleOpenAI)
	mux.HandleFunc("POST /api/chat", handleOllama)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /api/tags", handleTags)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Behavior selection ---

func responseTokens(req *chatRequest) []string {
	last := lastUserMessage(req)
	if strings.Contains(strings.ToLower(last), "count from 1 to 5") {
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}
	return []string{"Hello", ", ", "nice", " ", "day", "!"}
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

// --- OpenAI-format handler ---

func handleOpenAI(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	if req.Model == "mock-503" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"model is loading","type":"server_error"}}`))
		return
	}

	if req.Stream {
		streamOpenAI(w, &req)
		return
	}

	tokens := responseTokens(&req)
	resp := chatResponse{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMsg{Role: "assistant", Content: strings.Join(tokens, "")},
				FinishReason: "stop",
			},
		},
	}
	if req.Model != "mock-no-usage" {
		resp.Usage = &chatUsage{PromptTokens: 10, CompletionTokens: len(tokens), TotalTokens: 10 + len(tokens)}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func streamOpenAI(w http.ResponseWriter, req *chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	tokens := responseTokens(req)
	emit := frameWriter(w, flusher, req.Model == "mock-torn")

	emit(sseChunk(req.Model, map[string]any{"role": "assistant"}, nil))

	for i, token := range tokens {
		if req.Model == "mock-midfail" && i == 2 {
			// Drop the connection mid-stream. The hijack leaves the
			// client with a torn read, not a clean close.
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, err := hj.Hijack()
				if err == nil {
					conn.Close()
					return
				}
			}
			return
		}
		if req.Model == "mock-slow" {
			time.Sleep(200 * time.Millisecond)
		}
		emit(sseChunk(req.Model, map[string]any{"content": token}, nil))
	}

	// Matches the real wire order under stream_options.include_usage: the
	// finish chunk first, then a separate usage-only chunk, then [DONE].
	finish := "stop"
	emit(sseChunk(req.Model, map[string]any{}, &finish))
	if req.Model != "mock-no-usage" {
		usage := &chatUsage{PromptTokens: 10, CompletionTokens: len(tokens), TotalTokens: 10 + len(tokens)}
		emit(sseUsageChunk(req.Model, usage))
	}
	emit([]byte("data: [DONE]\n\n"))
}

func sseChunk(model string, delta map[string]any, finish *string) []byte {
	chunk := map[string]any{
		"id":      "chatcmpl-mock-stream",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			},
		},
	}

	data, _ := json.Marshal(chunk)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

func sseUsageChunk(model string, usage *chatUsage) []byte {
	chunk := map[string]any{
		"id":      "chatcmpl-mock-stream",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []any{},
		"usage":   usage,
	}

	data, _ := json.Marshal(chunk)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}

// frameWriter returns a function that writes one frame. In torn mode it
// splits each frame at awkward byte offsets and flushes between the
// halves, so the consumer's frame reassembly gets exercised.
func frameWriter(w http.ResponseWriter, flusher http.Flusher, torn bool) func([]byte) {
	return func(frame []byte) {
		if !torn || len(frame) < 8 {
			w.Write(frame)
			flusher.Flush()
			return
		}
		cut := len(frame)/2 + 3 // lands mid-payload, often mid-rune
		w.Write(frame[:cut])
		flusher.Flush()
		w.Write(frame[cut:])
		flusher.Flush()
	}
}

// --- Ollama-format handler ---

type ollamaChunk struct {
	Model     string   `json:"model"`
	CreatedAt string   `json:"created_at"`
	Message   *chatMsg `json:"message,omitempty"`
	Done      bool     `json:"done"`

	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

func handleOllama(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	if req.Model == "mock-503" {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model is loading"}`))
		return
	}

	tokens := responseTokens(&req)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaChunk{
			Model:           req.Model,
			CreatedAt:       now,
			Message:         &chatMsg{Role: "assistant", Content: strings.Join(tokens, "")},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 10,
			EvalCount:       len(tokens),
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")

	enc := json.NewEncoder(w)
	for _, token := range tokens {
		if req.Model == "mock-slow" {
			time.Sleep(200 * time.Millisecond)
		}
		enc.Encode(ollamaChunk{
			Model:     req.Model,
			CreatedAt: now,
			Message:   &chatMsg{Role: "assistant", Content: token},
		})
		flusher.Flush()
	}

	final := ollamaChunk{
		Model:      req.Model,
		CreatedAt:  now,
		Done:       true,
		DoneReason: "stop",
	}
	if req.Model != "mock-no-usage" {
		final.PromptEvalCount = 10
		final.EvalCount = len(tokens)
	}
	enc.Encode(final)
	flusher.Flush()
}

// --- Catalog endpoints ---

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "mock"},
			{"id": "mock-no-usage", "object": "model", "owned_by": "mock"},
			{"id": "mock-torn", "object": "model", "owned_by": "mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleTags(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"models": []map[string]any{
			{"name": "mock-model", "model": "mock-model"},
			{"name": "mock-no-usage", "model": "mock-no-usage"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
