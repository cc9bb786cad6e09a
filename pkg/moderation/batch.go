package moderation

import (
	"context"

	"github.com/BinLe1988/moderation-gateway/models"
	"golang.org/x/sync/errgroup"
)

// ModerateFunc is one resilient moderation call: upstream send wrapped by
// the retry policy.
type ModerateFunc func(ctx context.Context, req models.ModerationRequest) (models.ModerationResult, error)

// Orchestrator fans a batch out over a bounded worker pool and returns the
// results in input order.
type Orchestrator struct {
	concurrency int
	moderate    ModerateFunc
}

// NewOrchestrator creates an orchestrator running at most concurrency calls at once.
func NewOrchestrator(concurrency int, moderate ModerateFunc) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{concurrency: concurrency, moderate: moderate}
}

// Run moderates every request independently. results[i] always belongs to
// reqs[i]; a failed item carries its error instead of failing the batch.
// Once ctx is done no further items are started and the remaining ones are
// reported as canceled.
func (o *Orchestrator) Run(ctx context.Context, reqs []models.ModerationRequest) []models.ModerationResult {
	results := make([]models.ModerationResult, len(reqs))

	// A plain Group, not WithContext: one item failing must not cancel the others.
	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			results[i] = FailedResult(req, CanceledError(err))
			continue
		}
		g.Go(func() error {
			// ctx may have ended while this item waited for a free slot.
			if err := ctx.Err(); err != nil {
				results[i] = FailedResult(req, CanceledError(err))
				return nil
			}
			res, err := o.moderate(ctx, req)
			if err != nil {
				res = FailedResult(req, err)
			}
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// FailedResult builds the per-item result for a failed call.
func FailedResult(req models.ModerationRequest, err error) models.ModerationResult {
	return models.ModerationResult{
		Input:             req.Text,
		Categories:        map[string]bool{},
		FlaggedCategories: []string{},
		Error:             InfoOf(err),
	}
}
