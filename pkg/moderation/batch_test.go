package moderation

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchOf(texts ...string) []models.ModerationRequest {
	reqs := make([]models.ModerationRequest, len(texts))
	for i, text := range texts {
		reqs[i] = models.ModerationRequest{Text: text}
	}
	return reqs
}

func TestOrchestratorKeepsInputOrder(t *testing.T) {
	orch := NewOrchestrator(4, func(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
		// later items finish first
		switch req.Text {
		case "a":
			time.Sleep(30 * time.Millisecond)
		case "b":
			time.Sleep(10 * time.Millisecond)
		}
		return models.ModerationResult{Input: req.Text}, nil
	})

	results := orch.Run(context.Background(), batchOf("a", "b", "c"))

	require.Len(t, results, 3)
	for i, text := range []string{"a", "b", "c"} {
		assert.Equal(t, text, results[i].Input)
		assert.True(t, results[i].OK())
	}
}

func TestOrchestratorIsolatesFailures(t *testing.T) {
	orch := NewOrchestrator(2, func(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
		if req.Text == "a" {
			return models.ModerationResult{}, PermanentError(400, nil, "rejected")
		}
		return models.ModerationResult{Input: req.Text, Flagged: true}, nil
	})

	results := orch.Run(context.Background(), batchOf("a", "b"))

	require.Len(t, results, 2)
	require.NotNil(t, results[0].Error)
	assert.Equal(t, "a", results[0].Input)
	assert.Equal(t, string(KindPermanent), results[0].Error.Kind)
	assert.Equal(t, 400, results[0].Error.UpstreamStatus)

	assert.Nil(t, results[1].Error)
	assert.True(t, results[1].Flagged)

	resp := models.NewBatchResponse(results)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
}

func TestOrchestratorBoundsConcurrency(t *testing.T) {
	var running, peak int32
	orch := NewOrchestrator(3, func(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return models.ModerationResult{Input: req.Text}, nil
	})

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("item-%d", i)
	}
	results := orch.Run(context.Background(), batchOf(texts...))

	require.Len(t, results, 20)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	for i, r := range results {
		assert.Equal(t, texts[i], r.Input)
	}
}

func TestOrchestratorCanceledBeforeStart(t *testing.T) {
	var calls int32
	orch := NewOrchestrator(1, func(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
		atomic.AddInt32(&calls, 1)
		return models.ModerationResult{Input: req.Text}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := orch.Run(ctx, batchOf("a", "b"))

	assert.Zero(t, atomic.LoadInt32(&calls))
	require.Len(t, results, 2)
	for i, r := range results {
		require.NotNil(t, r.Error)
		assert.Equal(t, string(KindCanceled), r.Error.Kind)
		assert.Equal(t, []string{"a", "b"}[i], r.Input)
	}
}

func TestOrchestratorCanceledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	orch := NewOrchestrator(1, func(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
		atomic.AddInt32(&calls, 1)
		if req.Text == "a" {
			cancel()
		}
		return models.ModerationResult{Input: req.Text}, nil
	})

	texts := []string{"a", "b", "c", "d"}
	results := orch.Run(ctx, batchOf(texts...))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, results, 4)
	assert.True(t, results[0].OK())
	assert.Equal(t, "a", results[0].Input)
	for i := 1; i < len(texts); i++ {
		require.NotNil(t, results[i].Error)
		assert.Equal(t, string(KindCanceled), results[i].Error.Kind)
		assert.Equal(t, texts[i], results[i].Input)
	}
}
