package engine

import (
	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/provider"
)

// translateRequest converts a Chat Completions request into the
// backend-facing provider request. Transport concerns (stream_options,
// authorization) stay behind; unknown extra fields ride along unchanged.
func translateRequest(req *api.ChatCompletionRequest) *provider.Request {
	pr := &provider.Request{
		Model:            req.Model,
		Messages:         req.Messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		User:             req.User,
		Stream:           req.Stream,
		Extra:            req.Extra,
	}
	if req.StreamOptions != nil {
		pr.IncludeUsage = req.StreamOptions.IncludeUsage
	}
	return pr
}
