package moderation

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// ResultCache stores successful results for a short TTL.
type ResultCache interface {
	Get(ctx context.Context, key string) (models.ModerationResult, bool)
	Set(ctx context.Context, key string, result models.ModerationResult)
	Close() error
}

// CacheKey digests the text and detection config of a request.
// encoding/json sorts map keys, so equal configs give equal keys.
func CacheKey(req models.ModerationRequest) string {
	cfg, _ := json.Marshal(req.DetectionConfig)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(req.Text))
	h.Write([]byte{0})
	h.Write(cfg)
	return hex.EncodeToString(h.Sum(nil))
}

// NewResultCache returns the cache selected by cfg, or nil when caching is off.
func NewResultCache(ctx context.Context, cfg configs.Cache, log *zap.Logger) (ResultCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RedisURL != "" {
		client, err := ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisCache(client, cfg.TTL(), log), nil
	}
	return NewMemoryCache(cfg.MaxEntries, cfg.TTL()), nil
}

// CacheStats is a snapshot of MemoryCache counters.
type CacheStats struct {
	Size    int
	Hits    int
	Misses  int
	HitRate float64
}

// CacheEntry is one cached result.
type CacheEntry struct {
	Result      models.ModerationResult
	Expiry      time.Time
	LastAccess  time.Time
	AccessCount int
}

// MemoryCache is a bounded in-process TTL cache. When full, the least
// recently accessed entry is evicted.
type MemoryCache struct {
	data             map[string]CacheEntry
	maxEntries       int
	ttl              time.Duration
	mu               sync.Mutex
	evictionCallback func(string, CacheEntry)

	hits   int
	misses int

	stopOnce sync.Once
	stop     chan struct{}
}

var _ ResultCache = (*MemoryCache)(nil)

// NewMemoryCache creates the cache and starts its expiry sweeper; call Close to stop it.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	cm := &MemoryCache{
		data:       make(map[string]CacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}

	go cm.cleanupExpired()

	return cm
}

func (cm *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(cm.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.mu.Lock()
			now := time.Now()
			for key, entry := range cm.data {
				if now.After(entry.Expiry) {
					cm.evict(key, entry)
				}
			}
			cm.mu.Unlock()
		case <-cm.stop:
			return
		}
	}
}

// SetEvictionCallback registers fn to run on every eviction. fn runs with the cache lock held.
func (cm *MemoryCache) SetEvictionCallback(fn func(string, CacheEntry)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.evictionCallback = fn
}

// Get returns a live entry and records a hit or miss.
func (cm *MemoryCache) Get(_ context.Context, key string) (models.ModerationResult, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	entry, ok := cm.data[key]
	if ok && time.Now().After(entry.Expiry) {
		cm.evict(key, entry)
		ok = false
	}
	if !ok {
		cm.misses++
		return models.ModerationResult{}, false
	}

	cm.hits++
	entry.AccessCount++
	entry.LastAccess = time.Now()
	cm.data[key] = entry
	return entry.Result, true
}

// Set stores result under key, evicting the oldest entry when full.
func (cm *MemoryCache) Set(_ context.Context, key string, result models.ModerationResult) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.data[key]; !exists && len(cm.data) >= cm.maxEntries {
		cm.evictOldest()
	}

	now := time.Now()
	cm.data[key] = CacheEntry{
		Result:     result,
		Expiry:     now.Add(cm.ttl),
		LastAccess: now,
	}
}

// Stats returns current size and hit counters.
func (cm *MemoryCache) Stats() CacheStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	stats := CacheStats{
		Size:   len(cm.data),
		Hits:   cm.hits,
		Misses: cm.misses,
	}
	if total := cm.hits + cm.misses; total > 0 {
		stats.HitRate = float64(cm.hits) / float64(total)
	}
	return stats
}

// Close stops the expiry sweeper.
func (cm *MemoryCache) Close() error {
	cm.stopOnce.Do(func() { close(cm.stop) })
	return nil
}

func (cm *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range cm.data {
		if first || entry.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccess
			first = false
		}
	}

	if !first {
		cm.evict(oldestKey, cm.data[oldestKey])
	}
}

func (cm *MemoryCache) evict(key string, entry CacheEntry) {
	if cm.evictionCallback != nil {
		cm.evictionCallback(key, entry)
	}
	delete(cm.data, key)
}
