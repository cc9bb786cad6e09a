package moderation

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// MonitorConfig controls CacheMonitor.
type MonitorConfig struct {
	Interval time.Duration

	// MinHitRate below which a warning is logged, once enough lookups were seen.
	MinHitRate float64
	MinLookups int

	// AlertCallback, if set, receives every alert message.
	AlertCallback func(alert string)
}

// CacheMonitor periodically logs MemoryCache statistics and evictions.
type CacheMonitor struct {
	cache  *MemoryCache
	config MonitorConfig
	log    *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewCacheMonitor(cache *MemoryCache, config MonitorConfig, log *zap.Logger) *CacheMonitor {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.MinLookups <= 0 {
		config.MinLookups = 100
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := &CacheMonitor{
		cache:    cache,
		config:   config,
		log:      log,
		stopChan: make(chan struct{}),
	}
	cache.SetEvictionCallback(m.handleEviction)
	return m
}

func (m *CacheMonitor) Start() {
	go m.monitorLoop()
}

func (m *CacheMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *CacheMonitor) monitorLoop() {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectStats()
		case <-m.stopChan:
			return
		}
	}
}

func (m *CacheMonitor) collectStats() {
	stats := m.cache.Stats()
	m.log.Info("cache stats",
		zap.Int("size", stats.Size),
		zap.Int("hits", stats.Hits),
		zap.Int("misses", stats.Misses),
		zap.Float64("hit_rate", stats.HitRate),
	)
	m.checkMetrics(stats)
}

func (m *CacheMonitor) checkMetrics(stats CacheStats) {
	if stats.Hits+stats.Misses < m.config.MinLookups {
		return
	}
	if stats.HitRate < m.config.MinHitRate {
		m.alert("low cache hit rate", zap.Float64("hit_rate", stats.HitRate), zap.Float64("threshold", m.config.MinHitRate))
	}
}

// handleEviction runs under the cache lock; it must not call back into the cache.
func (m *CacheMonitor) handleEviction(key string, entry CacheEntry) {
	m.log.Debug("cache entry evicted",
		zap.String("key", key),
		zap.Duration("idle", time.Since(entry.LastAccess)),
		zap.Int("accesses", entry.AccessCount),
	)
}

func (m *CacheMonitor) alert(message string, fields ...zap.Field) {
	m.log.Warn(message, fields...)
	if m.config.AlertCallback != nil {
		m.config.AlertCallback(message)
	}
}
