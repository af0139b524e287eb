package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer wait;
	// tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

// Backoff returns the wait before the retry that follows the given failed
// attempt (1-based). A server hint is honored as the minimum.
func (p RetryPolicy) Backoff(attempt int, hint time.Duration) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if hint > d {
		d = hint
	}
	return d
}

type retrying struct {
	next   Completer
	policy RetryPolicy
}

// WithRetry retries transient failures of next with exponential backoff.
// Fatal errors and context cancellation are returned at once; when the
// attempts run out the last transient error is escalated to a FatalError.
func WithRetry(next Completer, policy RetryPolicy) Completer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Sleep == nil {
		policy.Sleep = sleepContext
	}
	return &retrying{next: next, policy: policy}
}

func (r *retrying) Complete(ctx context.Context, req *Request) (*Completion, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if isContextErr(err) || !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}

		var hint time.Duration
		var te *TransientError
		if errors.As(err, &te) {
			hint = te.RetryAfter
		}
		wait := r.policy.Backoff(attempt, hint)
		log.Printf("warning: %s attempt %d/%d failed: %v (retrying in %s)", req.Model, attempt, r.policy.MaxAttempts, err, wait)
		if err := r.policy.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, &FatalError{
		Message: fmt.Sprintf("retries exhausted after %d attempts", r.policy.MaxAttempts),
		Err:     lastErr,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
