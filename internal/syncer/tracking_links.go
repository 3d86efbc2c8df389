package syncer

import (
	"context"
	"time"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

// TrackingLinkSyncer refreshes the counters of every creator's tracking links.
type TrackingLinkSyncer struct {
	logger    *logger.Logger
	store     Store
	client    *fanvue.Client
	auth      *tokens.Authorizer
	scheduler *Scheduler
	settings  FetchSettings

	now func() time.Time
}

func NewTrackingLinkSyncer(store Store, client *fanvue.Client, auth *tokens.Authorizer, scheduler *Scheduler, settings FetchSettings, logger *logger.Logger) *TrackingLinkSyncer {
	return &TrackingLinkSyncer{
		logger:    logger,
		store:     store,
		client:    client,
		auth:      auth,
		scheduler: scheduler,
		settings:  settings,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SyncAll syncs a batch of active creators, least recently synced first.
func (s *TrackingLinkSyncer) SyncAll(ctx context.Context) (*models.BatchSummary, error) {
	creators, err := s.store.ListTrackingLinkDueCreators(ctx, s.scheduler.batchSize)
	if err != nil {
		return models.NewBatchSummary("sync-tracking-links"), err
	}
	return s.scheduler.Run(ctx, "sync-tracking-links", creatorIDs(creators), func(ctx context.Context, id string) error {
		_, err := s.SyncCreator(ctx, id)
		return err
	}), nil
}

// SyncCreator upserts all tracking links of a creator and returns how many
// were stored.
func (s *TrackingLinkSyncer) SyncCreator(ctx context.Context, creatorID string) (int, error) {
	syncedAt := s.now()
	stored := 0
	truncated := false

	err := s.auth.WithToken(ctx, creatorID, func(ctx context.Context, creator *models.Creator, token string) error {
		result, err := fanvue.FetchAll(ctx, s.client, token, fanvue.TrackingLinksPath(creator.FanvueUUID), fanvue.FetchOptions{
			PageSize: s.settings.PageSize,
			MaxPages: s.settings.MaxPages,
			Policy:   s.settings.Retry,
		}, func(page []fanvue.TrackingLink) error {
			links := make([]models.TrackingLink, 0, len(page))
			for _, l := range page {
				links = append(links, models.TrackingLink{
					UpstreamUUID:  l.UUID,
					CreatorID:     creator.ID,
					Name:          l.Name,
					URL:           l.LinkURL,
					Clicks:        l.Clicks,
					Subscribers:   l.Subscribes,
					EarningsCents: l.Earnings,
					SyncedAt:      syncedAt,
				})
			}
			links = dedupe(links, func(l models.TrackingLink) string { return l.UpstreamUUID })
			if err := s.store.UpsertTrackingLinks(ctx, links); err != nil {
				return err
			}
			stored += len(links)
			return nil
		})
		if result != nil {
			truncated = result.Truncated
		}
		return err
	})
	if err != nil {
		return stored, err
	}
	if truncated {
		return stored, nil
	}
	return stored, s.store.MarkTrackingLinksSynced(ctx, creatorID, syncedAt)
}

func creatorIDs(creators []*models.Creator) []string {
	ids := make([]string, 0, len(creators))
	for _, c := range creators {
		ids = append(ids, c.ID)
	}
	return ids
}
