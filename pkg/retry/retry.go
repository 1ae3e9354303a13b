// Package retry implements the backend-call retry policy: a per-attempt
// state machine, exponential backoff with jitter, and explicit
// classification of raw transport failures into stream error kinds.
//
// Retry is only legal while no byte has been forwarded to the client; the
// pipeline enforces that boundary, this package only answers "may this
// failure be retried, and after what delay".
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"time"

	"github.com/sluice-dev/sluice/pkg/stream"
)

// State is the phase of a backend call attempt sequence.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateRetrying
	StateSucceeded
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Policy configures the retry budget and backoff shape for one backend call.
type Policy struct {
	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; each further
	// attempt doubles it.
	BaseDelay time.Duration

	// MaxDelay is the hard ceiling on any single backoff delay.
	MaxDelay time.Duration

	// Jitter is the fraction (0..1) of the delay randomized on each wait.
	Jitter float64
}

// DefaultPolicy returns the policy used when configuration does not
// override it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
}

// Attempt tracks attempts and elapsed backoff for a single backend call.
// It is owned by one pipeline instance, discarded once the call either
// succeeds or exhausts its budget, and never shared across requests.
type Attempt struct {
	policy   Policy
	state    State
	attempts int
	waited   time.Duration
}

// New creates an Attempt in the Idle state.
func New(policy Policy) *Attempt {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Attempt{policy: policy}
}

// Begin transitions Idle or Retrying into Attempting and counts the attempt.
func (a *Attempt) Begin() {
	a.state = StateAttempting
	a.attempts++
}

// Succeed marks the call as succeeded.
func (a *Attempt) Succeed() {
	a.state = StateSucceeded
}

// Fail records a failure for the current attempt. It returns the backoff
// delay and true when the caller should retry; otherwise the attempt
// sequence is Failed and the returned error is the terminal, classified
// failure (carrying the cumulative attempt count once the budget is
// exhausted).
func (a *Attempt) Fail(err error) (time.Duration, bool, *stream.StreamError) {
	se := Classify(err)

	if !se.Retryable {
		a.state = StateFailed
		return 0, false, se
	}

	if a.attempts >= a.policy.MaxAttempts {
		a.state = StateFailed
		return 0, false, &stream.StreamError{
			Kind:     stream.KindRetryExhausted,
			Message:  "retry budget exhausted: " + se.Message,
			Attempts: a.attempts,
		}
	}

	a.state = StateRetrying
	delay := a.backoff()
	a.waited += delay
	return delay, true, nil
}

// State returns the current state.
func (a *Attempt) State() State { return a.state }

// Attempts returns the number of attempts begun so far.
func (a *Attempt) Attempts() int { return a.attempts }

// Waited returns the cumulative backoff delay scheduled so far.
func (a *Attempt) Waited() time.Duration { return a.waited }

// backoff computes the next delay: exponential in the attempt count,
// jittered, and capped at MaxDelay.
func (a *Attempt) backoff() time.Duration {
	d := a.policy.BaseDelay << (a.attempts - 1)
	if d <= 0 || d > a.policy.MaxDelay {
		d = a.policy.MaxDelay
	}
	if a.policy.Jitter > 0 {
		spread := float64(d) * a.policy.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	if d > a.policy.MaxDelay {
		d = a.policy.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Wait sleeps for the given backoff delay, returning early with the context
// error if the request is cancelled.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Classify maps a raw failure onto the stream error taxonomy. Errors that
// already carry a classification pass through unchanged. Recognized
// transport failures become backend_network_error; timeouts are retryable,
// client-side cancellation is not. Anything unrecognized is explicitly
// non-retryable rather than masked as a generic internal error.
func Classify(err error) *stream.StreamError {
	if se, ok := stream.AsStreamError(err); ok {
		return se
	}

	if errors.Is(err, context.Canceled) {
		return stream.NewError(stream.KindBackendNetwork,
			"request cancelled: "+err.Error(), false)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stream.NewError(stream.KindBackendNetwork,
			"backend timeout: "+err.Error(), true)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return stream.NewError(stream.KindBackendNetwork,
			"backend connection error: "+err.Error(), true)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return stream.NewError(stream.KindBackendNetwork,
			"backend closed connection: "+err.Error(), true)
	}

	return stream.NewError(stream.KindBackendNetwork,
		"unclassified backend failure: "+err.Error(), false)
}
