package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/sluice-dev/sluice/pkg/api"
)

// Logging returns middleware that emits structured log entries for each
// chat-completion request. The log entry includes the model, whether the
// request streamed, duration, request ID (from context), and whether the
// request succeeded or failed.
//
// The HTTP method and path are not available at the ChatCompleter level.
// For full HTTP-level logging (including status codes), use HTTP-level
// middleware in the adapter.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatCompleter) ChatCompleter {
		return ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.ChatCompletion(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("model", req.Model),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}

			return err
		})
	}
}
