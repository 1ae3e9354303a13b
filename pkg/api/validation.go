package api

import "fmt"

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages    int
	MaxContentSize int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages:    1000,
		MaxContentSize: 10 * 1024 * 1024, // 10MB
	}
}

// ValidateChatRequest checks a ChatCompletionRequest for validity. It returns
// an *APIError describing the first validation failure, or nil if the request
// is valid.
// An empty model is allowed here: model resolution (including default
// model substitution) belongs to the engine.
func ValidateChatRequest(req *ChatCompletionRequest, cfg ValidationConfig) *APIError {
	if len(req.Messages) == 0 {
		return NewInvalidRequestError("messages", "messages must contain at least one entry")
	}

	if cfg.MaxMessages > 0 && len(req.Messages) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d entries", cfg.MaxMessages))
	}

	var contentSize int
	for i, msg := range req.Messages {
		if msg.Role == "" {
			return NewInvalidRequestError(
				fmt.Sprintf("messages[%d].role", i), "role is required")
		}
		contentSize += len(msg.Content)
	}

	if cfg.MaxContentSize > 0 && contentSize > cfg.MaxContentSize {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("total content exceeds maximum of %d bytes", cfg.MaxContentSize))
	}

	if req.Temperature != nil && (*req.Temperature < 0.0 || *req.Temperature > 2.0) {
		return NewInvalidRequestError("temperature", "temperature must be between 0.0 and 2.0")
	}

	if req.TopP != nil && (*req.TopP < 0.0 || *req.TopP > 1.0) {
		return NewInvalidRequestError("top_p", "top_p must be between 0.0 and 1.0")
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return NewInvalidRequestError("max_tokens", "max_tokens must be positive")
	}

	return nil
}
