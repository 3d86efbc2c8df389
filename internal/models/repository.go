package models

import (
	"context"
	"time"
)

// TokenStore persists per-creator OAuth credentials.
type TokenStore interface {
	GetCreator(ctx context.Context, id string) (*Creator, error)
	// SaveTokens stores a refreshed token pair.
	SaveTokens(ctx context.Context, creatorID string, pair TokenPair) error
	// MarkConnectionExpired keeps the stale tokens but flags the creator so
	// schedulers skip it until the user reconnects.
	MarkConnectionExpired(ctx context.Context, creatorID, reason string) error
	ListCreatorsWithExpiringTokens(ctx context.Context, before time.Time, limit int) ([]*Creator, error)
}

type CreatorRepository interface {
	// UpsertConnectedCreator stores a creator after an interactive OAuth
	// connect, reactivating an expired connection.
	UpsertConnectedCreator(ctx context.Context, creator *Creator) (*Creator, error)
	GetCreatorByFanvueUUID(ctx context.Context, fanvueUUID string) (*Creator, error)
	ListDueCreators(ctx context.Context, staleBefore time.Time, limit int) ([]*Creator, error)
	// ListActiveCreators orders by the oldest stats refresh.
	ListActiveCreators(ctx context.Context, limit int) ([]*Creator, error)
	// ListTrackingLinkDueCreators orders by the oldest tracking-link sync.
	ListTrackingLinkDueCreators(ctx context.Context, limit int) ([]*Creator, error)
	ListAgencyCreators(ctx context.Context, agencyID string) ([]*Creator, error)
	MarkTransactionsSynced(ctx context.Context, creatorID string, at time.Time) error
	MarkTrackingLinksSynced(ctx context.Context, creatorID string, at time.Time) error
	UpdateCreatorStats(ctx context.Context, creatorID string, stats CreatorStats, at time.Time) error
	InvalidateCreatorStats(ctx context.Context, creatorID string) error
}

type TransactionRepository interface {
	// UpsertTransactions inserts new transactions keyed by upstream id. Known
	// rows are left untouched except for filling a missing model_id.
	UpsertTransactions(ctx context.Context, txs []Transaction) error
	// RecomputeRevenue sets the creator's revenue_total to SUM(amount) over
	// its transactions and returns the new total.
	RecomputeRevenue(ctx context.Context, creatorID string) (int64, error)
	CountTransactions(ctx context.Context, creatorID string) (int64, error)
	ListOrphanedTransactions(ctx context.Context, agencyID string) ([]*Transaction, error)
	ListAgenciesWithOrphans(ctx context.Context) ([]string, error)
	AssignTransactions(ctx context.Context, creatorID string, ids []uint) (int64, error)
}

type TrackingLinkRepository interface {
	UpsertTrackingLinks(ctx context.Context, links []TrackingLink) error
}

type QueueRepository interface {
	GetQueueItem(ctx context.Context, id string) (*QueueItem, error)
	// ListReadyQueueItems returns pending items scheduled at or before now,
	// oldest schedule first.
	ListReadyQueueItems(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error)
	// TransitionQueueItem applies update if the item is still in update.From
	// and the move is legal; otherwise it returns ErrInvalidTransition.
	TransitionQueueItem(ctx context.Context, id string, update QueueUpdate) error
	RecoverStaleQueueItems(ctx context.Context, staleBefore time.Time) (int64, error)
	CompleteCampaignIfDone(ctx context.Context, campaignID string, at time.Time) (bool, error)
}

type WebhookRepository interface {
	// RecordWebhookEvent stores the event unless its key was seen before.
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) (bool, error)
	// ForgetWebhookEvent removes an event whose effect could not be applied.
	ForgetWebhookEvent(ctx context.Context, id uint) error
	MarkWebhookProcessed(ctx context.Context, id uint, at time.Time, errMsg string) error
}

type ScheduleRepository interface {
	ListLateShifts(ctx context.Context, startedBefore time.Time) ([]*Shift, error)
	MarkShiftLateAlerted(ctx context.Context, id string, at time.Time) error
	ListMissedPosts(ctx context.Context, scheduledBefore time.Time) ([]*ScheduledPost, error)
	MarkPostMissedAlerted(ctx context.Context, id string, at time.Time) error
}

// LockRepository hands out job leases.
type LockRepository interface {
	// TryAcquireLock takes the named lease unless another holder owns an
	// unexpired one.
	TryAcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}

// Repository is the complete persistence surface of the service.
type Repository interface {
	TokenStore
	CreatorRepository
	TransactionRepository
	TrackingLinkRepository
	QueueRepository
	WebhookRepository
	ScheduleRepository
	LockRepository

	Close() error
}
