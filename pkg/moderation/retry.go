package moderation

import (
	"context"
	"time"

	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/sethvargo/go-retry"
)

// RetryState tracks one logical moderation call across its attempts.
type RetryState struct {
	Attempt   int
	LastError error
	NextDelay time.Duration
}

// AttemptFunc performs a single attempt. The attempt number is available
// through AttemptFromContext.
type AttemptFunc func(ctx context.Context) (models.ModerationResult, error)

// RetryPolicy retries transient failures with capped exponential backoff.
// Permanent and canceled failures are returned as-is after one attempt.
type RetryPolicy struct {
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	jitterPercent uint64
	observer      func(RetryState)
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithRetryObserver registers fn to be called right before each retry
// attempt starts. The state describes the failed attempt and the delay that
// was waited. A retry abandoned because ctx ended is never reported.
func WithRetryObserver(fn func(RetryState)) RetryOption {
	return func(p *RetryPolicy) {
		p.observer = fn
	}
}

// NewRetryPolicy builds a policy from config.
func NewRetryPolicy(cfg configs.Retry, opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts:   cfg.MaxAttempts,
		baseDelay:     cfg.BaseDelay(),
		maxDelay:      cfg.MaxDelay(),
		jitterPercent: uint64(cfg.JitterPercent),
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.baseDelay <= 0 {
		p.baseDelay = time.Millisecond
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// backoff is base * 2^n, jittered, then capped so jitter never exceeds the cap.
func (p *RetryPolicy) backoff(state *RetryState) retry.Backoff {
	b := retry.NewExponential(p.baseDelay)
	if p.jitterPercent > 0 {
		b = retry.WithJitterPercent(p.jitterPercent, b)
	}
	if p.maxDelay > 0 {
		b = retry.WithCappedDuration(p.maxDelay, b)
	}
	b = retry.WithMaxRetries(uint64(p.maxAttempts-1), b)

	return retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := b.Next()
		if stop {
			return 0, true
		}
		state.NextDelay = next
		return next, false
	})
}

// Execute runs fn until it succeeds, fails with a non-transient error, the
// attempt budget is spent, or ctx is done. Waits between attempts are timers
// that return early when ctx is done.
func (p *RetryPolicy) Execute(ctx context.Context, fn AttemptFunc) (models.ModerationResult, *RetryState, error) {
	state := &RetryState{}

	result, err := retry.DoValue(ctx, p.backoff(state), func(ctx context.Context) (models.ModerationResult, error) {
		if state.Attempt > 0 && p.observer != nil {
			p.observer(*state)
		}
		state.Attempt++
		res, err := fn(withAttempt(ctx, state.Attempt))
		if err == nil {
			return res, nil
		}
		state.LastError = err
		if KindOf(err) == KindTransient {
			return models.ModerationResult{}, retry.RetryableError(err)
		}
		return models.ModerationResult{}, err
	})
	if err == nil {
		return result, state, nil
	}

	// retry.DoValue hands back a bare ctx.Err() when a wait was interrupted;
	// AsError turns that into a canceled error.
	final := *AsError(err)
	final.Attempts = state.Attempt
	final.Final = final.Kind == KindTransient
	return models.ModerationResult{}, state, &final
}
