package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/sluice-dev/sluice/pkg/api"
	"github.com/sluice-dev/sluice/pkg/observability"
	"github.com/sluice-dev/sluice/pkg/provider"
	"github.com/sluice-dev/sluice/pkg/retry"
	"github.com/sluice-dev/sluice/pkg/stream"
)

// ChunkWriter is where the pipeline sends the outward stream. The http
// transport's SSE writer satisfies it.
type ChunkWriter interface {
	// WriteChunk writes one chat.completion.chunk frame.
	WriteChunk(chunk *api.ChatCompletionChunk) error

	// WriteError writes an in-stream error frame. No [DONE] sentinel may
	// follow it.
	WriteError(serr *stream.StreamError) error

	// WriteDone writes the [DONE] sentinel.
	WriteDone() error
}

// Result summarizes a committed stream. StreamErr is set when the stream
// ended with an in-stream error frame rather than the [DONE] sentinel.
type Result struct {
	ID           string
	Usage        *api.Usage
	FinishReason string
	Deltas       int
	Retries      int
	StreamErr    *stream.StreamError
}

// Pipeline runs streaming completions against one backend.
type Pipeline struct {
	backend provider.Provider
	name    string
	policy  retry.Policy
	logger  *slog.Logger
}

// New creates a Pipeline for the given backend.
func New(backend provider.Provider, name string, policy retry.Policy, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{backend: backend, name: name, policy: policy, logger: logger}
}

// Run executes one streaming completion. It returns an error only when
// nothing has been written outward, in which case the caller still owns the
// response and should send an HTTP-level error. Once the first chunk has
// been written, failures are reported as an in-stream error frame and Run
// returns a Result with StreamErr set.
func (p *Pipeline) Run(ctx context.Context, req *provider.Request, w ChunkWriter) (*Result, error) {
	tr := NewTranslator(api.NewCompletionID(), time.Now().Unix(), req.Model, req.IncludeUsage)
	attempt := retry.New(p.policy)
	start := time.Now()
	wrote := false

	for {
		attempt.Begin()

		res, serr := p.runAttempt(ctx, req, tr, w, &wrote, start)
		if serr == nil {
			attempt.Succeed()
			res.Retries = attempt.Attempts() - 1
			return res, nil
		}

		observability.StreamErrorsTotal.WithLabelValues(p.name, string(serr.Kind)).Inc()

		if wrote {
			// The response is committed; the failure travels in-stream.
			p.logger.Warn("stream failed after first byte",
				"backend", p.name,
				"model", req.Model,
				"kind", string(serr.Kind),
				"error", serr.Message)
			if err := w.WriteError(serr); err != nil {
				p.logger.Debug("writing error frame", "error", err)
			}
			res.StreamErr = serr
			res.Retries = attempt.Attempts() - 1
			return res, nil
		}

		delay, retrying, failErr := attempt.Fail(serr)
		if !retrying {
			return nil, failErr
		}

		observability.RetriesTotal.WithLabelValues(p.name).Inc()
		p.logger.Info("retrying backend stream",
			"backend", p.name,
			"model", req.Model,
			"attempt", attempt.Attempts(),
			"delay", delay,
			"kind", string(serr.Kind))

		if err := retry.Wait(ctx, delay); err != nil {
			return nil, serr
		}

		// Nothing reached the client, so the envelope can be reused, but
		// any usage or finish state buffered during the failed attempt
		// must not leak into the retried stream.
		tr.Reset()
	}
}

// runAttempt drives one backend stream to completion. It returns a non-nil
// StreamError on failure; wrote tracks whether any chunk has reached the
// client across attempts.
func (p *Pipeline) runAttempt(ctx context.Context, req *provider.Request, tr *Translator, w ChunkWriter, wrote *bool, start time.Time) (*Result, *stream.StreamError) {
	ch, err := p.backend.Stream(ctx, req)
	if err != nil {
		return nil, retry.Classify(err)
	}

	for ev := range ch {
		switch ev.Type {
		case stream.EventError:
			// Drain so the producer goroutine can exit, then report.
			for range ch {
			}
			return p.result(tr), ev.Err

		case stream.EventDone:
			for _, chunk := range tr.Translate(ev) {
				if werr := w.WriteChunk(chunk); werr != nil {
					return p.result(tr), writeFailure(werr)
				}
				*wrote = true
			}
			if werr := w.WriteDone(); werr != nil {
				p.logger.Debug("writing done sentinel", "error", werr)
			}
			for range ch {
			}
			return p.result(tr), nil

		default:
			chunks := tr.Translate(ev)
			for _, chunk := range chunks {
				if werr := w.WriteChunk(chunk); werr != nil {
					for range ch {
					}
					return p.result(tr), writeFailure(werr)
				}
				if !*wrote {
					*wrote = true
					observability.TimeToFirstToken.WithLabelValues(p.name, req.Model).
						Observe(time.Since(start).Seconds())
				}
			}
		}
	}

	// The producer closed the channel without a terminal event. Treat it
	// like a dropped connection.
	return p.result(tr), stream.NewError(stream.KindBackendNetwork,
		"backend stream ended without a terminal event", true)
}

func (p *Pipeline) result(tr *Translator) *Result {
	return &Result{
		ID:           tr.ID(),
		Usage:        tr.Usage(),
		FinishReason: tr.FinishReason(),
		Deltas:       tr.Deltas(),
	}
}

// writeFailure wraps a client-side write error. It is never retryable:
// the client is the broken party.
func writeFailure(err error) *stream.StreamError {
	return stream.NewError(stream.KindBackendNetwork, "writing to client: "+err.Error(), false)
}
