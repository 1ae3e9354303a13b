package openai

import (
	"encoding/json"

	"github.com/sluice-dev/sluice/pkg/api"
)

// chatRequest is the Chat Completions request wire format.
type chatRequest struct {
	Model            string             `json:"model"`
	Messages         []api.Message      `json:"messages"`
	Stream           bool               `json:"stream,omitempty"`
	StreamOptions    *api.StreamOptions `json:"stream_options,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	User             string             `json:"user,omitempty"`

	// Extra carries non-standard parameters forwarded verbatim. Standard
	// fields win on collision.
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges Extra into the standard fields.
func (r *chatRequest) MarshalJSON() ([]byte, error) {
	type plain chatRequest
	base, err := json.Marshal((*plain)(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// chatChunk is one streamed Chat Completions chunk payload.
type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *api.Usage    `json:"usage,omitempty"`
	Error   *chatError    `json:"error,omitempty"`
}

type chunkChoice struct {
	Index        int       `json:"index"`
	Delta        api.Delta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

// chatResponse is the complete non-streaming Chat Completions response.
type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *api.Usage   `json:"usage,omitempty"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      api.Message `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatError is the backend's in-band error shape.
type chatError struct {
	Message string          `json:"message"`
	Type    string          `json:"type,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// modelsResponse is the /v1/models listing.
type modelsResponse struct {
	Object string      `json:"object"`
	Data   []api.Model `json:"data"`
}
