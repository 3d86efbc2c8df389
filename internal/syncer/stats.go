package syncer

import (
	"context"
	"time"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

// StatsSyncer refreshes cached profile counters. The upstream earnings
// aggregate is only compared with the local revenue; the transaction set
// stays the source of truth.
type StatsSyncer struct {
	logger    *logger.Logger
	store     Store
	client    *fanvue.Client
	auth      *tokens.Authorizer
	scheduler *Scheduler

	now func() time.Time
}

func NewStatsSyncer(store Store, client *fanvue.Client, auth *tokens.Authorizer, scheduler *Scheduler, logger *logger.Logger) *StatsSyncer {
	return &StatsSyncer{
		logger:    logger,
		store:     store,
		client:    client,
		auth:      auth,
		scheduler: scheduler,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatsSyncer) SyncAll(ctx context.Context) (*models.BatchSummary, error) {
	creators, err := s.store.ListActiveCreators(ctx, s.scheduler.batchSize)
	if err != nil {
		return models.NewBatchSummary("sync-stats"), err
	}
	return s.scheduler.Run(ctx, "sync-stats", creatorIDs(creators), s.SyncCreator), nil
}

func (s *StatsSyncer) SyncCreator(ctx context.Context, creatorID string) error {
	return s.auth.WithToken(ctx, creatorID, func(ctx context.Context, creator *models.Creator, token string) error {
		user, err := s.client.GetCurrentUser(ctx, token, false)
		if err != nil {
			return err
		}
		stats := models.CreatorStats{
			SubscribersCount: user.FanCounts.SubscribersCount,
			FollowersCount:   user.FanCounts.FollowersCount,
			PostsCount:       user.ContentCounts.PostCount,
		}
		if err := s.store.UpdateCreatorStats(ctx, creator.ID, stats, s.now()); err != nil {
			return err
		}

		insights, err := s.client.GetEarningsInsights(ctx, token)
		if err != nil {
			// The counters are stored; the drift check is informational.
			s.logger.Warn("Failed to fetch earnings insights", "creator_id", creator.ID, "error", err)
			return nil
		}
		if drift := insights.TotalGross - creator.RevenueTotal; drift != 0 {
			s.logger.Warn("Revenue differs from upstream insights",
				"creator_id", creator.ID,
				"local", Dollars(creator.RevenueTotal).StringFixed(2),
				"upstream", Dollars(insights.TotalGross).StringFixed(2),
				"drift", Dollars(drift).StringFixed(2))
		}
		return nil
	})
}
