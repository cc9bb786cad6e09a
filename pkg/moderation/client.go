package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 1 << 20

// Sender sends one moderation attempt upstream.
type Sender interface {
	Send(ctx context.Context, req models.ModerationRequest, deadline time.Time) (models.ModerationResult, error)
}

// Client calls the remote moderation API. It makes exactly one attempt per
// Send and classifies the outcome; retrying is up to RetryPolicy.
type Client struct {
	apiKey     string
	apiURL     string
	timeout    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

var _ Sender = (*Client)(nil)

// NewClient creates an upstream client. A nil httpClient uses a default one
// that does not follow redirects, so a 3xx is classified like any other
// non-2xx status. Timeouts are enforced per attempt through the request context.
func NewClient(cfg configs.Upstream, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		apiURL:     cfg.URL,
		timeout:    cfg.Timeout(),
		httpClient: httpClient,
		log:        log,
	}
}

// Send performs one attempt. The attempt is bounded by the earlier of
// deadline and now+timeout.
func (c *Client) Send(ctx context.Context, req models.ModerationRequest, deadline time.Time) (models.ModerationResult, error) {
	call, err := c.newCall(ctx, req, deadline)
	if err != nil {
		return models.ModerationResult{}, err
	}

	attemptCtx, cancel := context.WithDeadline(ctx, call.Deadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.apiURL, bytes.NewReader(call.Payload))
	if err != nil {
		return models.ModerationResult{}, PermanentError(0, err, "failed to create upstream request")
	}
	c.addRequestHeaders(ctx, httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.ModerationResult{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.ModerationResult{}, classifyTransportError(ctx, err)
	}

	c.log.Debug("upstream responded",
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Int("attempt", call.Attempt),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return models.ModerationResult{}, err
	}

	result, err := ParseResult(body)
	if err != nil {
		return models.ModerationResult{}, PermanentError(resp.StatusCode, err, "malformed upstream response")
	}
	result.Input = req.Text
	return result, nil
}

func (c *Client) newCall(ctx context.Context, req models.ModerationRequest, deadline time.Time) (models.UpstreamCall, error) {
	payload, err := json.Marshal(models.UpstreamPayload{
		Input:           req.Text,
		DetectionConfig: req.DetectionConfig,
	})
	if err != nil {
		return models.UpstreamCall{}, PermanentError(0, err, "failed to marshal upstream payload")
	}

	attemptDeadline := time.Now().Add(c.timeout)
	if !deadline.IsZero() && deadline.Before(attemptDeadline) {
		attemptDeadline = deadline
	}

	return models.UpstreamCall{
		Payload:  payload,
		Deadline: attemptDeadline,
		Attempt:  AttemptFromContext(ctx),
	}, nil
}

func (c *Client) addRequestHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
}

// classifyTransportError separates caller cancellation from failures of the
// attempt itself. Only the latter are transient.
func classifyTransportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return CanceledError(parent.Err())
	}

	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	if timeout {
		return TransientError(0, true, err, "upstream attempt timed out")
	}
	return TransientError(0, false, err, "upstream unreachable")
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return TransientError(status, false, nil, fmt.Sprintf("upstream rate limited (status %d): %s", status, snippet(body)))
	case status >= 500:
		return TransientError(status, false, nil, fmt.Sprintf("upstream server error (status %d): %s", status, snippet(body)))
	default:
		return PermanentError(status, nil, fmt.Sprintf("upstream rejected request (status %d): %s", status, snippet(body)))
	}
}

func snippet(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	if len(body) == 0 {
		return "empty body"
	}
	return string(body)
}
