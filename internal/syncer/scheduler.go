// Package syncer pulls creator data from Fanvue into the local store:
// transactions, tracking links and profile counters.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/retry"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	DefaultStaleness = time.Hour
	DefaultBatchSize = 50
	DefaultItemDelay = 2 * time.Second
)

type SchedulerOptions struct {
	// Staleness is the age after which a creator is due again.
	Staleness time.Duration
	// BatchSize caps one invocation; the rest waits for the next one.
	BatchSize int
	// ItemDelay spaces consecutive creators to stay under upstream limits.
	ItemDelay time.Duration
}

// Scheduler decides which creators need a sync and runs them one by one.
type Scheduler struct {
	logger   *logger.Logger
	creators models.CreatorRepository

	staleness time.Duration
	batchSize int
	itemDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewScheduler(creators models.CreatorRepository, opts SchedulerOptions, logger *logger.Logger) *Scheduler {
	s := &Scheduler{
		logger:    logger,
		creators:  creators,
		staleness: opts.Staleness,
		batchSize: opts.BatchSize,
		itemDelay: opts.ItemDelay,
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     retry.Sleep,
	}
	if s.staleness <= 0 {
		s.staleness = DefaultStaleness
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.itemDelay < 0 {
		s.itemDelay = 0
	}
	return s
}

// SelectDue returns the ids of active creators whose transactions were never
// synced or not within the staleness window. Never-synced creators come
// first, then the oldest sync. maxBatch <= 0 uses the configured batch size.
func (s *Scheduler) SelectDue(ctx context.Context, maxBatch int) ([]string, error) {
	if maxBatch <= 0 || maxBatch > s.batchSize {
		maxBatch = s.batchSize
	}
	creators, err := s.creators.ListDueCreators(ctx, s.now().Add(-s.staleness), maxBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to select due creators: %w", err)
	}
	ids := make([]string, 0, len(creators))
	for _, c := range creators {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Run calls fn for every id in order and waits the item delay between the
// end of one call and the start of the next. A failing item is recorded and
// the loop continues; a done ctx halts it.
func (s *Scheduler) Run(ctx context.Context, job string, ids []string, fn func(ctx context.Context, id string) error) *models.BatchSummary {
	summary := models.NewBatchSummary(job)

	for i, id := range ids {
		if i > 0 {
			if err := s.sleep(ctx, s.itemDelay); err != nil {
				s.logger.Warn("Batch interrupted", "job", job, "processed", summary.Processed, "remaining", len(ids)-summary.Processed, "error", err)
				summary.Halted = true
				break
			}
		}
		err := fn(ctx, id)
		if err != nil {
			s.logger.Error("Batch item failed", "job", job, "id", id, "error", err)
		}
		summary.Record(id, err)
	}

	s.logger.Info("Batch finished", "job", job,
		"processed", summary.Processed, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary
}
