package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sluice-dev/sluice/pkg/stream"
)

// MapHTTPError converts a non-2xx backend response into a classified stream
// error. Rate limits, server-side errors, and request timeouts are
// retryable; authentication, validation, and not-found failures are not.
func MapHTTPError(resp *http.Response) *stream.StreamError {
	message := extractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("backend returned HTTP %d", resp.StatusCode)
	} else {
		message = fmt.Sprintf("backend returned HTTP %d: %s", resp.StatusCode, message)
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode >= http.StatusInternalServerError

	return stream.NewError(stream.KindBackendHTTP, message, retryable)
}

// MapNetworkError converts a transport-level failure (connection refused,
// reset, DNS, timeout) into a retryable stream error.
func MapNetworkError(err error) *stream.StreamError {
	return stream.NewError(stream.KindBackendNetwork,
		"backend connection error: "+err.Error(), true)
}

// extractErrorMessage reads a bounded amount of the response body and tries
// the error shapes the supported backend families use: an OpenAI-style
// {"error":{"message":...}} object and an Ollama-style {"error":"..."}
// string.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var openaiShape struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &openaiShape); err == nil && openaiShape.Error.Message != "" {
		return openaiShape.Error.Message
	}

	var ollamaShape struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &ollamaShape); err == nil && ollamaShape.Error != "" {
		return ollamaShape.Error
	}

	return ""
}
