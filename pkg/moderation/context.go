package moderation

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	attemptKey   contextKey = "attempt"
)

// WithRequestID attaches the inbound request ID so it can be forwarded upstream.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func withAttempt(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptKey, n)
}

// AttemptFromContext returns the 1-based attempt number set by RetryPolicy,
// or 1 outside of a retry loop.
func AttemptFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(attemptKey).(int); ok {
		return v
	}
	return 1
}
