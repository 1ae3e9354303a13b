package openai

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

// Provider implements provider.Provider for OpenAI-compatible Chat
// Completions backends.
type Provider struct {
	cfg          Config
	name         string
	client       *http.Client // bounded by the non-streaming request timeout
	streamClient *http.Client // unbounded; the context governs lifetime
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider with the given name and configuration.
func New(name string, cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: BaseURL is required")
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

// Capabilities returns what this backend supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{Streaming: true, Embeddings: true}
}

// Complete performs non-streaming inference.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false

	httpResp, err := p.post(ctx, p.client, "/v1/chat/completions", translateRequest(&reqCopy), "")
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, stream.NewError(stream.KindMalformedPayload,
			"undecodable backend response: "+err.Error(), false)
	}
	if chatResp.Error != nil {
		return nil, stream.NewError(stream.KindProviderReported, chatResp.Error.Message, false)
	}
	if len(chatResp.Choices) == 0 {
		return nil, stream.NewError(stream.KindMalformedPayload,
			"backend response has no choices", false)
	}

	choice := chatResp.Choices[0]
	return &provider.Response{
		Role:         choice.Message.Role,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Model:        chatResp.Model,
		Usage:        chatResp.Usage,
	}, nil
}

// Stream performs streaming inference, returning a channel of canonical
// events. The channel is closed when the stream ends.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan stream.Event, error) {
	reqCopy := *req
	reqCopy.Stream = true

	httpResp, err := p.post(ctx, p.streamClient, "/v1/chat/completions", translateRequest(&reqCopy), "text/event-stream")
	if err != nil {
		return nil, err
	}

	ch := make(chan stream.Event, 16)
	go func() {
		defer close(ch)
		fb := stream.NewSSEBuffer(p.cfg.MaxFrameBytes)
		provider.Consume(ctx, httpResp.Body, fb, NewParser().Parse, ch, p.cfg.Timeouts.Stall)
	}()
	return ch, nil
}

// Embeddings performs a non-streaming embeddings request.
func (p *Provider) Embeddings(ctx context.Context, req *api.EmbeddingsRequest) (*api.EmbeddingsResponse, error) {
	httpResp, err := p.post(ctx, p.client, "/v1/embeddings", req, "")
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var embResp api.EmbeddingsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&embResp); err != nil {
		return nil, stream.NewError(stream.KindMalformedPayload,
			"undecodable embeddings response: "+err.Error(), false)
	}
	return &embResp, nil
}

// ListModels queries the backend's /v1/models endpoint.
func (p *Provider) ListModels(ctx context.Context) ([]api.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating models request: %w", err)
	}
	p.setAuth(httpReq)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, provider.MapHTTPError(httpResp)
	}

	var resp modelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, stream.NewError(stream.KindMalformedPayload,
			"undecodable models response: "+err.Error(), false)
	}
	return resp.Data, nil
}

// Close releases idle pooled connections.
func (p *Provider) Close() error {
	p.streamClient.CloseIdleConnections()
	return nil
}

// post marshals body, sends it, and maps error statuses. On success the
// caller owns the response body.
func (p *Provider) post(ctx context.Context, client *http.Client, path string, body any, accept string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling backend request: %w", err)
	}

	debug.Log("providers", "backend request",
		"backend", p.name, "url", p.cfg.BaseURL+path, "bytes", len(data))
	debug.Raw("providers", string(data))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating backend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}
	p.setAuth(httpReq)

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

func (p *Provider) setAuth(req *http.Request) {
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

// translateRequest converts the backend-agnostic request to the Chat
// Completions wire format. Usage reporting on the final chunk is requested
// whenever the caller wants it and the call streams.
func translateRequest(req *provider.Request) *chatRequest {
	out := &chatRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		User:             req.User,
		Extra:            req.Extra,
	}
	if req.Stream && req.IncludeUsage {
		out.StreamOptions = &api.StreamOptions{IncludeUsage: true}
	}
	return out
}
