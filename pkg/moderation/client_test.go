package moderation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(configs.Upstream{
		APIKey:          "test-key",
		URL:             url,
		TimeoutSeconds:  timeout.Seconds(),
		DeadlineSeconds: 10,
	}, nil, nil)
}

func TestClientSendSuccess(t *testing.T) {
	var got models.UpstreamPayload
	var headers http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"flagged":true,"flagged_categories":["security"]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	ctx := WithRequestID(context.Background(), "req-1")
	req := models.ModerationRequest{
		Text:            "hello",
		DetectionConfig: models.DetectionConfig{"security": {"adversarial": true}},
	}

	res, err := client.Send(ctx, req, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Input)
	assert.True(t, res.Flagged)
	assert.Equal(t, []string{"security"}, res.FlaggedCategories)

	assert.Equal(t, "hello", got.Input)
	assert.Equal(t, req.DetectionConfig, got.DetectionConfig)
	assert.Equal(t, "Bearer test-key", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t, "req-1", headers.Get("X-Request-Id"))
}

func TestClientOmitsEmptyDetectionConfig(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, time.Second).Send(context.Background(), models.ModerationRequest{Text: "x"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "x", raw["input"])
	assert.NotContains(t, raw, "detection_config")
}

func TestClientClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   Kind
	}{
		{http.StatusOK, `[1,2,3]`, KindPermanent},
		{http.StatusOK, `not json`, KindPermanent},
		{http.StatusBadRequest, `{"detail":"bad"}`, KindPermanent},
		{http.StatusUnauthorized, `{"detail":"no key"}`, KindPermanent},
		{http.StatusNotFound, ``, KindPermanent},
		{http.StatusTooManyRequests, `slow down`, KindTransient},
		{http.StatusInternalServerError, `oops`, KindTransient},
		{http.StatusBadGateway, ``, KindTransient},
		{http.StatusServiceUnavailable, ``, KindTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, time.Second).Send(context.Background(), models.ModerationRequest{Text: "x"}, time.Time{})
			require.Error(t, err)
			e := AsError(err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
		})
	}
}

func TestClientAttemptTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(server.URL, 50*time.Millisecond).Send(context.Background(), models.ModerationRequest{Text: "x"}, time.Time{})
	require.Error(t, err)
	e := AsError(err)
	assert.Equal(t, KindTransient, e.Kind)
	assert.True(t, e.Timeout)
}

func TestClientCallerCancelIsCanceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL, 5*time.Second).Send(ctx, models.ModerationRequest{Text: "x"}, time.Time{})
	require.Error(t, err)
	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestClientUnreachableIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url, time.Second).Send(context.Background(), models.ModerationRequest{Text: "x"}, time.Time{})
	require.Error(t, err)
	e := AsError(err)
	assert.Equal(t, KindTransient, e.Kind)
	assert.Zero(t, e.Status)
}

func TestClientDoesNotFollowRedirects(t *testing.T) {
	for _, status := range []int{http.StatusFound, http.StatusTemporaryRedirect} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var original, moved int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/moved" {
					atomic.AddInt32(&moved, 1)
					_, _ = w.Write([]byte(`{"result":{"flagged":false}}`))
					return
				}
				atomic.AddInt32(&original, 1)
				http.Redirect(w, r, "/moved", status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, time.Second).Send(context.Background(), models.ModerationRequest{Text: "x"}, time.Time{})
			require.Error(t, err)
			e := AsError(err)
			assert.Equal(t, KindPermanent, e.Kind)
			assert.Equal(t, status, e.Status)
			assert.Equal(t, int32(1), atomic.LoadInt32(&original))
			assert.Zero(t, atomic.LoadInt32(&moved))
		})
	}
}
