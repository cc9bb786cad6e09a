package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCacheMonitorAlertsOnLowHitRate(t *testing.T) {
	cache := NewMemoryCache(10, time.Hour)
	defer cache.Close()

	var mu sync.Mutex
	var alerts []string
	monitor := NewCacheMonitor(cache, MonitorConfig{
		Interval:   10 * time.Millisecond,
		MinHitRate: 0.5,
		MinLookups: 4,
		AlertCallback: func(alert string) {
			mu.Lock()
			defer mu.Unlock()
			alerts = append(alerts, alert)
		},
	}, nil)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		cache.Get(ctx, "missing")
	}

	monitor.Start()
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "low cache hit rate", alerts[0])
}

func TestCacheMonitorQuietBelowMinLookups(t *testing.T) {
	cache := NewMemoryCache(10, time.Hour)
	defer cache.Close()

	called := false
	monitor := NewCacheMonitor(cache, MonitorConfig{
		MinHitRate:    0.9,
		MinLookups:    10,
		AlertCallback: func(string) { called = true },
	}, nil)

	cache.Get(context.Background(), "missing")
	monitor.collectStats()

	assert.False(t, called)
}

func TestCacheMonitorLogsEvictions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cache := NewMemoryCache(1, time.Hour)
	defer cache.Close()

	monitor := NewCacheMonitor(cache, MonitorConfig{}, zap.New(core))
	defer monitor.Stop()

	ctx := context.Background()
	cache.Set(ctx, "key1", models.ModerationResult{})
	cache.Set(ctx, "key2", models.ModerationResult{})

	evictions := logs.FilterMessage("cache entry evicted").All()
	require.Len(t, evictions, 1)
	assert.Equal(t, "key1", evictions[0].ContextMap()["key"])
}
