package ollama

import (
	"encoding/json"

	"github.com/sluice-dev/sluice/pkg/api"
)

// chatRequest is the /api/chat wire format.
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []api.Message  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// chatChunk is one NDJSON object of a streaming /api/chat response. The
// final object (done=true) also carries token counts and timing.
type chatChunk struct {
	Model           string      `json:"model"`
	CreatedAt       string      `json:"created_at"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
	Error           string      `json:"error,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// tagsResponse is the /api/tags model listing.
type tagsResponse struct {
	Models []tagModel `json:"models"`
}

type tagModel struct {
	Name       string          `json:"name"`
	ModifiedAt string          `json:"modified_at"`
	Details    json.RawMessage `json:"details,omitempty"`
}
