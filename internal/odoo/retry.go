package odoo

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/logger"

	backoff "github.com/cenkalti/backoff/v4"
)

// Retrier retries transient failures with exponential backoff: the n-th
// retry waits BaseDelay * BackoffFactor^(n-1), capped at MaxDelay. Any other
// error stops immediately.
type Retrier struct {
	policy  config.RetryPolicy
	timer   backoff.Timer
	onRetry func(attempt int, delay time.Duration, err error)
}

type RetrierOption func(*Retrier)

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(t backoff.Timer) RetrierOption {
	return func(r *Retrier) {
		r.timer = t
	}
}

// WithRetryHook is called before each wait with the failed attempt number.
func WithRetryHook(fn func(attempt int, delay time.Duration, err error)) RetrierOption {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

func NewRetrier(policy config.RetryPolicy, opts ...RetrierOption) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &Retrier{policy: policy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.Multiplier = r.policy.BackoffFactor
	b.RandomizationFactor = 0
	b.MaxInterval = r.policy.MaxDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. It returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		slog.Warn("Retrying remote call", append(logger.Attrs(ctx),
			"attempt", attempts, "max_attempts", r.policy.MaxAttempts, "delay", delay, "error", err)...)
		if r.onRetry != nil {
			r.onRetry(attempts, delay, err)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, r.newBackOff(ctx), notify, r.timer)
	return attempts, err
}
