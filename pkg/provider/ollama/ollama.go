package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/debug"
	"github.com/sluice-dev/sluice/pkg/provider"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// Config holds configuration for the Ollama adapter.
type Config struct {
	// BaseURL is the Ollama server URL (e.g. "http://localhost:11434").
	BaseURL string

	// Timeouts for the connection phases. Zero fields take defaults.
	Timeouts provider.Timeouts

	// MaxFrameBytes bounds the streaming frame buffer. Zero selects the
	// package default.
	MaxFrameBytes int
}

// Provider implements provider.Provider for Ollama-style NDJSON backends.
type Provider struct {
	cfg          Config
	name         string
	client       *http.Client
	streamClient *http.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider with the given name and configuration.
func New(name string, cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama: BaseURL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeouts == (provider.Timeouts{}) {
		cfg.Timeouts = provider.DefaultTimeouts()
	}

	transport := provider.NewTransport(cfg.Timeouts)
	return &Provider{
		cfg:          cfg,
		name:         name,
		client:       &http.Client{Transport: transport, Timeout: cfg.Timeouts.Request},
		streamClient: &http.Client{Transport: transport},
	}, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return p.name }

// Capabilities returns what this backend supports. Embeddings requests are
// served by openai-family backends only.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true}
}

// Complete performs non-streaming inference against /api/chat.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false

	httpResp, err := p.post(ctx, p.client, translateRequest(&reqCopy))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var chunk chatChunk
	if err := json.NewDecoder(httpResp.Body).Decode(&chunk); err != nil {
		return nil, stream.NewError(stream.KindMalformedPayload,
			"undecodable backend response: "+err.Error(), false)
	}
	if chunk.Error != "" {
		return nil, stream.NewError(stream.KindProviderReported, chunk.Error, false)
	}

	reason := chunk.DoneReason
	if reason == "" {
		reason = "stop"
	}
	resp := &provider.Response{
		Role:         chunk.Message.Role,
		Content:      chunk.Message.Content,
		FinishReason: reason,
		Model:        chunk.Model,
	}
	if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
		resp.Usage = &api.Usage{
			PromptTokens:     chunk.PromptEvalCount,
			CompletionTokens: chunk.EvalCount,
			TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
		}
	}
	return resp, nil
}

// Stream performs streaming inference, returning a channel of canonical
// events. The channel is closed when the stream ends.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan stream.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true

	httpResp, err := p.post(ctx, p.streamClient, translateRequest(&reqCopy))
	if err != nil {
		return nil, err
	}

	ch := make(chan stream.Event, 16)
	go func() {
		defer close(ch)
		fb := stream.NewNDJSONBuffer(p.cfg.MaxFrameBytes)
		provider.Consume(ctx, httpResp.Body, fb, ParseFrame, ch, p.cfg.Timeouts.Stall)
	}()
	return ch, nil
}

// Embeddings is not supported by this backend family.
func (p *Provider) Embeddings(ctx context.Context, req *api.EmbeddingsRequest) (*api.EmbeddingsResponse, error) {
	return nil, api.NewInvalidRequestError("model",
		fmt.Sprintf("backend %q does not serve embeddings", p.name))
}

// ListModels queries the backend's /api/tags endpoint.
func (p *Provider) ListModels(ctx context.Context) ([]api.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating tags request: %w", err)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, provider.MapHTTPError(httpResp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&tags); err != nil {
		return nil, stream.NewError(stream.KindMalformedPayload,
			"undecodable tags response: "+err.Error(), false)
	}

	models := make([]api.Model, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, api.Model{ID: m.Name, Object: "model", OwnedBy: "ollama"})
	}
	return models, nil
}

// Close releases idle pooled connections.
func (p *Provider) Close() error {
	p.streamClient.CloseIdleConnections()
	return nil
}

func (p *Provider) post(ctx context.Context, client *http.Client, body *chatRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling backend request: %w", err)
	}

	debug.Log("providers", "backend request",
		"backend", p.name, "url", p.cfg.BaseURL+"/api/chat", "bytes", len(data))
	debug.Raw("providers", string(data))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating backend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, provider.MapNetworkError(err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, provider.MapHTTPError(httpResp)
	}
	return httpResp, nil
}

// translateRequest converts the backend-agnostic request to the Ollama
// /api/chat wire format. Sampling parameters map onto the options object.
func translateRequest(req *provider.Request) *chatRequest {
	out := &chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   req.Stream,
	}

	opts := make(map[string]any)
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}
	if len(opts) > 0 {
		out.Options = opts
	}
	return out
}
