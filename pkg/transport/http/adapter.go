package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/observability"
	"github.com/sluice-dev/sluice/pkg/stream"
	"github.com/sluice-dev/sluice/pkg/transport"
)

// Adapter serves the OpenAI-compatible API over HTTP. It routes requests to
// the appropriate handler and serializes responses.
type Adapter struct {
	completer transport.ChatCompleter
	catalog   transport.ModelCatalog // nil disables GET /v1/models
	embedder  transport.Embedder     // nil disables POST /v1/embeddings
	inflight  *transport.InFlightRegistry
	mux       *http.ServeMux
	config    Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	MaxBodySize int64
	Validation  api.ValidationConfig
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		MaxBodySize: 10 << 20, // 10 MB
		Validation:  api.DefaultValidationConfig(),
	}
}

// NewAdapter creates an HTTP adapter with the given handlers. The catalog
// and embedder are optional; when nil the corresponding endpoints return
// 501. Middleware is applied to the ChatCompleter in the given order.
func NewAdapter(completer transport.ChatCompleter, catalog transport.ModelCatalog, embedder transport.Embedder, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		completer = transport.Chain(middlewares...)(completer)
	}

	a := &Adapter{
		completer: completer,
		catalog:   catalog,
		embedder:  embedder,
		inflight:  transport.NewInFlightRegistry(),
		mux:       http.NewServeMux(),
		config:    cfg,
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletion)
	a.mux.HandleFunc("POST /v1/embeddings", a.handleEmbeddings)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation and request metrics.
func (a *Adapter) Handler() http.Handler {
	return observability.MetricsMiddleware(httpRequestIDMiddleware(a.mux))
}

// InFlight exposes the registry of active streams so the server can drain
// them on shutdown.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is forwarded to
// the response. After the handler runs, it checks the context for a
// request ID (set by the transport-level RequestID middleware) and adds
// it to the response headers if not already set.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChatCompletion handles POST /v1/chat/completions.
func (a *Adapter) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeChatRequest(w, r)
	if !ok {
		return
	}

	if apiErr := api.ValidateChatRequest(req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if req.Stream {
		a.handleStreamingCompletion(w, r, req)
		return
	}

	rw := newSSEResponseWriter(w, transport.RequestIDFromContext(r.Context()))
	if err := a.completer.ChatCompletion(r.Context(), req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleStreamingCompletion handles streaming POST requests (stream: true).
func (a *Adapter) handleStreamingCompletion(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requestID := transport.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = transport.ContextWithRequestID(ctx, requestID)
	}
	a.inflight.Register(requestID, cancel)
	defer a.inflight.Remove(requestID)

	rw := newSSEResponseWriter(w, requestID)
	if err := a.completer.ChatCompletion(ctx, req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleEmbeddings handles POST /v1/embeddings.
func (a *Adapter) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if a.embedder == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "embeddings are not available"),
			http.StatusNotImplemented,
		)
		return
	}

	if !a.checkContentType(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.EmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeDecodeError(w, err)
		return
	}
	if req.Model == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("model", "model is required"))
		return
	}
	if len(req.Input) == 0 {
		transport.WriteAPIError(w, api.NewInvalidRequestError("input", "input is required"))
		return
	}

	resp, err := a.embedder.Embeddings(r.Context(), &req)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	if a.catalog == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "model listing is not available"),
			http.StatusNotImplemented,
		)
		return
	}

	list, err := a.catalog.ListModels(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","in_flight_streams":%d}`+"\n", a.inflight.Len())
}

// decodeChatRequest validates headers, bounds the body, and decodes the
// request. It writes the error response itself and returns ok=false on
// failure.
func (a *Adapter) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*api.ChatCompletionRequest, bool) {
	if !a.checkContentType(w, r) {
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeDecodeError(w, err)
		return nil, false
	}
	return &req, true
}

func (a *Adapter) checkContentType(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}
	return true
}

func (a *Adapter) writeDecodeError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
			http.StatusRequestEntityTooLarge,
		)
		return
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
		http.StatusBadRequest,
	)
}

// writeError maps a handler error onto the HTTP response.
func (a *Adapter) writeError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if serr, ok := stream.AsStreamError(err); ok {
		transport.WriteAPIError(w, transport.APIErrorFromStream(serr))
		return
	}
	transport.WriteAPIError(w, api.NewServerError(err.Error()))
}

// writeHandlerError writes an error from the ChatCompleter. If streaming
// has already started the response is committed and the failure travels as
// the in-stream error frame; otherwise a standard JSON error response is
// written.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	if rw.hasStartedStreaming() {
		serr, ok := stream.AsStreamError(err)
		if !ok {
			serr = stream.NewError(stream.KindBackendNetwork, err.Error(), false)
		}
		rw.WriteError(serr)
		return
	}
	a.writeError(w, err)
}
