package moderation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "moderation:result:"

// ConnectRedis accepts either a redis:// URL or a bare host:port and checks
// the server is reachable.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// RedisCache shares results between gateway replicas. Redis failures degrade
// to cache misses; they never fail a moderation call.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

var _ ResultCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (models.ModerationResult, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		return models.ModerationResult{}, false
	}

	var result models.ModerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.log.Warn("redis cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return models.ModerationResult{}, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result models.ModerationResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
