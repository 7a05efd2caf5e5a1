package llm

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how transient provider failures are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retry attempts (not counting the first call).
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the retry settings used by New.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Backoff returns baseDelay * 2^attempt capped at maxDelay, plus up to 25% jitter.
func Backoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	delay := baseDelay
	for i := 0; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	if quarter := int64(delay / 4); quarter > 0 {
		delay += time.Duration(rand.Int63n(quarter))
	}
	return delay
}

type retrying struct {
	next   Provider
	policy RetryPolicy
	log    *zap.Logger
}

// WithRetry wraps p so retryable errors are retried according to policy.
// Waiting between attempts honours ctx.
func WithRetry(p Provider, policy RetryPolicy, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &retrying{next: p, policy: policy, log: log}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(r.policy.BaseDelay, attempt-1, r.policy.MaxDelay)
			r.log.Debug("retrying completion",
				zap.String("provider", r.next.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := r.next.Complete(ctx, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
