package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/auth"
	"github.com/sluice-dev/sluice/pkg/observability"
	"github.com/sluice-dev/sluice/pkg/pipeline"
	"github.com/sluice-dev/sluice/pkg/provider"
	"github.com/sluice-dev/sluice/pkg/retry"
	"github.com/sluice-dev/sluice/pkg/tokenizer"
	"github.com/sluice-dev/sluice/pkg/transport"
)

// Engine orchestrates request processing between the transport layer and
// the provider backends. One Engine serves all requests; per-request state
// lives in the pipeline.
type Engine struct {
	registry  *provider.Registry
	cfg       Config
	estimator *tokenizer.Estimator
	logger    *slog.Logger
}

// Engine serves every handler role the transport exposes.
var (
	_ transport.ChatCompleter = (*Engine)(nil)
	_ transport.ModelCatalog  = (*Engine)(nil)
	_ transport.Embedder      = (*Engine)(nil)
)

// New creates an Engine over the given registry. The registry must not be
// nil; the logger may be.
func New(registry *provider.Registry, cfg Config, logger *slog.Logger) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("engine: registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.EstimateUsage {
		e.estimator = tokenizer.New()
	}
	return e, nil
}

// ChatCompletion handles one /v1/chat/completions request, streaming or
// not.
func (e *Engine) ChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	if req.Model == "" {
		if e.cfg.DefaultModel == "" {
			return api.NewInvalidRequestError("model", "model is required")
		}
		req.Model = e.cfg.DefaultModel
	}

	backend, name, err := e.registry.Resolve(req.Model)
	if err != nil {
		return api.NewNotFoundError(err.Error())
	}

	if req.Stream && !backend.Capabilities().Streaming {
		return api.NewInvalidRequestError("stream",
			fmt.Sprintf("backend %q does not support streaming", name))
	}

	provReq := translateRequest(req)
	rc := newRequestContext(ctx, req.Model, name, req.Stream)

	if req.Stream {
		return e.streamCompletion(ctx, backend, rc, provReq, w)
	}
	return e.completeOnce(ctx, backend, rc, provReq, w)
}

// newRequestContext snapshots the per-request metadata once, at entry.
// Everything downstream reads it; nothing mutates it.
func newRequestContext(ctx context.Context, model, backend string, stream bool) *api.RequestContext {
	rc := &api.RequestContext{
		RequestID: transport.RequestIDFromContext(ctx),
		Model:     model,
		Backend:   backend,
		Stream:    stream,
		StartedAt: time.Now(),
	}
	if id := auth.IdentityFromContext(ctx); id != nil {
		rc.Subject = id.Subject
		rc.Tenant = id.Tenant
	}
	if dl, ok := ctx.Deadline(); ok {
		rc.Deadline = dl
	}
	return rc
}

// streamCompletion drives the framing pipeline and records the outcome.
func (e *Engine) streamCompletion(ctx context.Context, backend provider.Provider, rc *api.RequestContext, req *provider.Request, w transport.ResponseWriter) error {
	name := rc.Backend

	var cw pipeline.ChunkWriter = w
	var ew *estimatingWriter
	if e.estimator != nil && req.IncludeUsage {
		ew = newEstimatingWriter(w, e.estimator, req.Messages, req.Model, e.logger)
		cw = ew
	}

	p := pipeline.New(backend, name, e.cfg.retryPolicy(), e.logger)

	res, err := p.Run(ctx, req, cw)
	observability.BackendLatency.WithLabelValues(name, req.Model).Observe(time.Since(rc.StartedAt).Seconds())
	if err != nil {
		observability.BackendRequestsTotal.WithLabelValues(name, req.Model, "error").Inc()
		return err
	}

	status := "ok"
	if res.StreamErr != nil {
		status = "error"
	}
	observability.BackendRequestsTotal.WithLabelValues(name, req.Model, status).Inc()

	usage := res.Usage
	if usage == nil && ew != nil {
		usage = ew.Usage()
	}
	e.recordTokens(name, req.Model, usage)

	e.logger.Info("stream completed",
		"request_id", rc.RequestID,
		"subject", rc.Subject,
		"backend", name,
		"model", req.Model,
		"id", res.ID,
		"deltas", res.Deltas,
		"retries", res.Retries,
		"finish_reason", res.FinishReason,
		"duration", time.Since(rc.StartedAt))
	return nil
}

// completeOnce serves the non-streaming path. The retry budget applies the
// same way it does for streams: the response is not committed until the
// backend call succeeds, so every failed attempt may be retried.
func (e *Engine) completeOnce(ctx context.Context, backend provider.Provider, rc *api.RequestContext, req *provider.Request, w transport.ResponseWriter) error {
	name := rc.Backend
	attempt := retry.New(e.cfg.retryPolicy())

	for {
		attempt.Begin()

		resp, err := backend.Complete(ctx, req)
		if err == nil {
			attempt.Succeed()
			observability.BackendLatency.WithLabelValues(name, req.Model).Observe(time.Since(rc.StartedAt).Seconds())
			observability.BackendRequestsTotal.WithLabelValues(name, req.Model, "ok").Inc()
			return e.writeCompletion(name, req, resp, w)
		}

		serr := retry.Classify(err)
		observability.StreamErrorsTotal.WithLabelValues(name, string(serr.Kind)).Inc()

		delay, retrying, failErr := attempt.Fail(serr)
		if !retrying {
			observability.BackendRequestsTotal.WithLabelValues(name, req.Model, "error").Inc()
			return failErr
		}

		observability.RetriesTotal.WithLabelValues(name).Inc()
		e.logger.Info("retrying backend completion",
			"request_id", rc.RequestID,
			"backend", name,
			"model", req.Model,
			"attempt", attempt.Attempts(),
			"delay", delay,
			"kind", string(serr.Kind))

		if err := retry.Wait(ctx, delay); err != nil {
			return serr
		}
	}
}

// writeCompletion renders the provider response as an OpenAI chat
// completion and sends it.
func (e *Engine) writeCompletion(name string, req *provider.Request, resp *provider.Response, w transport.ResponseWriter) error {
	usage := resp.Usage
	if usage == nil && e.estimator != nil {
		est, err := e.estimator.EstimateUsage(req.Messages, resp.Content, req.Model)
		if err != nil {
			e.logger.Debug("usage estimation failed", "model", req.Model, "error", err)
		} else {
			usage = est
		}
	}
	e.recordTokens(name, req.Model, usage)

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	role := resp.Role
	if role == "" {
		role = "assistant"
	}
	reason := resp.FinishReason
	if reason == "" {
		reason = "stop"
	}

	return w.WriteCompletion(&api.ChatCompletion{
		ID:      api.NewCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{{
			Message:      api.Message{Role: role, Content: resp.Content},
			FinishReason: reason,
		}},
		Usage: usage,
	})
}

// Embeddings routes the request to the backend serving its model.
func (e *Engine) Embeddings(ctx context.Context, req *api.EmbeddingsRequest) (*api.EmbeddingsResponse, error) {
	backend, name, err := e.registry.Resolve(req.Model)
	if err != nil {
		return nil, api.NewNotFoundError(err.Error())
	}
	if !backend.Capabilities().Embeddings {
		return nil, api.NewInvalidRequestError("model",
			fmt.Sprintf("backend %q does not support embeddings", name))
	}

	start := time.Now()
	resp, err := backend.Embeddings(ctx, req)
	observability.BackendLatency.WithLabelValues(name, req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.BackendRequestsTotal.WithLabelValues(name, req.Model, "error").Inc()
		return nil, err
	}
	observability.BackendRequestsTotal.WithLabelValues(name, req.Model, "ok").Inc()
	return resp, nil
}

// ListModels aggregates the configured routes with whatever the backends
// report. Backend listing failures degrade to the configured set.
func (e *Engine) ListModels(ctx context.Context) (*api.ModelList, error) {
	seen := make(map[string]bool)
	list := &api.ModelList{Object: "list"}

	for _, id := range e.registry.Models() {
		seen[id] = true
		list.Data = append(list.Data, api.Model{ID: id, Object: "model", OwnedBy: "sluice"})
	}

	for name, backend := range e.registry.Backends() {
		models, err := backend.ListModels(ctx)
		if err != nil {
			e.logger.Warn("listing backend models", "backend", name, "error", err)
			continue
		}
		for _, m := range models {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			if m.Object == "" {
				m.Object = "model"
			}
			if m.OwnedBy == "" {
				m.OwnedBy = name
			}
			list.Data = append(list.Data, m)
		}
	}
	return list, nil
}

// recordTokens updates the token counters when usage is known.
func (e *Engine) recordTokens(backend, model string, usage *api.Usage) {
	if usage == nil {
		return
	}
	observability.BackendTokensTotal.WithLabelValues(backend, model, "input").Add(float64(usage.PromptTokens))
	observability.BackendTokensTotal.WithLabelValues(backend, model, "output").Add(float64(usage.CompletionTokens))
}
