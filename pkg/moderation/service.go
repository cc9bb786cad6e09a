package moderation

import (
	"context"
	"time"

	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/models"
	"go.uber.org/zap"
)

// Service is the moderation entry point used by the HTTP handlers.
type Service struct {
	cfg    *configs.Config
	client Sender
	retry  *RetryPolicy
	batch  *Orchestrator
	cache  ResultCache
	log    *zap.Logger
}

// NewService wires the client, retry policy and batch orchestrator together.
// cache may be nil.
func NewService(cfg *configs.Config, client Sender, cache ResultCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		cfg:    cfg,
		client: client,
		cache:  cache,
		log:    log,
	}
	s.retry = NewRetryPolicy(cfg.Retry, WithRetryObserver(s.logRetry))
	s.batch = NewOrchestrator(cfg.Batch.Concurrency, s.moderate)
	return s
}

// Ready returns a config error while the upstream API key is missing.
func (s *Service) Ready() error {
	if err := s.cfg.Ready(); err != nil {
		return ConfigError(err)
	}
	return nil
}

// MaxBatchSize is the largest accepted batch.
func (s *Service) MaxBatchSize() int {
	return s.cfg.Batch.MaxSize
}

// Moderate runs one logical moderation call.
func (s *Service) Moderate(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
	if err := s.Ready(); err != nil {
		return models.ModerationResult{}, err
	}
	return s.moderate(ctx, req)
}

// ModerateBatch moderates every request independently; results are in input order.
func (s *Service) ModerateBatch(ctx context.Context, reqs []models.ModerationRequest) ([]models.ModerationResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	results := s.batch.Run(ctx, reqs)

	resp := models.NewBatchResponse(results)
	s.log.Info("batch moderated",
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Int("items", len(reqs)),
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
		zap.Duration("latency", time.Since(start)),
	)
	return results, nil
}

func (s *Service) moderate(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error) {
	var key string
	if s.cache != nil {
		key = CacheKey(req)
		if result, ok := s.cache.Get(ctx, key); ok {
			s.log.Debug("cache hit", zap.String("request_id", RequestIDFromContext(ctx)))
			result.Input = req.Text
			return result, nil
		}
	}

	// One deadline for the whole logical call, shared by every attempt.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Upstream.Deadline())
	defer cancel()
	deadline, _ := ctx.Deadline()

	result, state, err := s.retry.Execute(ctx, func(ctx context.Context) (models.ModerationResult, error) {
		return s.client.Send(ctx, req, deadline)
	})
	if err != nil {
		e := AsError(err)
		s.log.Warn("moderation failed",
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.String("kind", string(e.Kind)),
			zap.Int("attempts", state.Attempt),
			zap.Error(err),
		)
		return models.ModerationResult{}, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, result)
	}
	return result, nil
}

func (s *Service) logRetry(state RetryState) {
	fields := []zap.Field{
		zap.Int("attempt", state.Attempt),
		zap.Duration("waited", state.NextDelay),
		zap.Error(state.LastError),
	}
	if e := AsError(state.LastError); e != nil && e.Status != 0 {
		fields = append(fields, zap.Int("upstream_status", e.Status))
	}
	s.log.Warn("retrying upstream call", fields...)
}
