package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/repository"
	"github.com/onyxos/onyxsync/internal/testutil"
)

func seedCreator(t *testing.T, repo *repository.PostgresDB, handle string) *models.Creator {
	t.Helper()
	creator := &models.Creator{
		AgencyID:     "agency-1",
		FanvueUUID:   "fv-" + handle,
		Handle:       handle,
		RefreshToken: "rt-" + handle,
	}
	require.NoError(t, repo.Conn.Create(creator).Error)
	return creator
}

func TestUpsertTransactionsIsIdempotent(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	creator := seedCreator(t, repo, "ava")

	batch := []models.Transaction{
		{UpstreamID: "t1", AgencyID: "agency-1", ModelID: &creator.ID, Amount: 500},
		{UpstreamID: "t2", AgencyID: "agency-1", ModelID: &creator.ID, Amount: 250},
	}
	require.NoError(t, repo.UpsertTransactions(ctx, batch))
	again := []models.Transaction{
		{UpstreamID: "t1", AgencyID: "agency-1", ModelID: &creator.ID, Amount: 500},
		{UpstreamID: "t2", AgencyID: "agency-1", ModelID: &creator.ID, Amount: 250},
	}
	require.NoError(t, repo.UpsertTransactions(ctx, again))

	count, err := repo.CountTransactions(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	total, err := repo.RecomputeRevenue(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), total)

	got, err := repo.GetCreator(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), got.RevenueTotal)
}

func TestUpsertKeepsOwnerAndFillsOrphans(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	ava := seedCreator(t, repo, "ava")
	bea := seedCreator(t, repo, "bea")

	require.NoError(t, repo.UpsertTransactions(ctx, []models.Transaction{
		{UpstreamID: "owned", AgencyID: "agency-1", ModelID: &ava.ID, Amount: 100},
		{UpstreamID: "orphan", AgencyID: "agency-1", Amount: 200},
	}))

	// a later sync never moves an owned row, but may adopt an orphan
	require.NoError(t, repo.UpsertTransactions(ctx, []models.Transaction{
		{UpstreamID: "owned", AgencyID: "agency-1", ModelID: &bea.ID, Amount: 100},
		{UpstreamID: "orphan", AgencyID: "agency-1", ModelID: &bea.ID, Amount: 200},
	}))

	avaCount, err := repo.CountTransactions(ctx, ava.ID)
	require.NoError(t, err)
	beaCount, err := repo.CountTransactions(ctx, bea.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), avaCount)
	assert.Equal(t, int64(1), beaCount)

	orphans, err := repo.ListOrphanedTransactions(ctx, "agency-1")
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestRecomputeRevenueUnknownCreator(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	_, err := repo.RecomputeRevenue(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestQueueTransitionsAreCompareAndSwap(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	item := &models.QueueItem{AgencyID: "agency-1", CreatorID: "c1", FanUUID: "fan", ScheduledFor: time.Now().UTC().Add(-time.Minute)}
	require.NoError(t, repo.Conn.Create(item).Error)

	require.NoError(t, repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{From: models.QueuePending, To: models.QueueProcessing}))

	// a second worker lost the race
	err := repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{From: models.QueuePending, To: models.QueueProcessing})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// illegal edge is rejected before touching the row
	err = repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{From: models.QueueProcessing, To: models.QueueProcessing})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	sentAt := time.Now().UTC()
	require.NoError(t, repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{From: models.QueueProcessing, To: models.QueueSent, SentAt: &sentAt}))
	err = repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{From: models.QueueSent, To: models.QueuePending})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := repo.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSent, got.Status)
	assert.NotNil(t, got.SentAt)
}

func TestListReadyQueueItemsOrder(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i, offset := range []time.Duration{-time.Minute, -time.Hour, time.Hour} {
		item := &models.QueueItem{AgencyID: "agency-1", CreatorID: "c1", FanUUID: "fan", Text: string(rune('a' + i)), ScheduledFor: now.Add(offset)}
		require.NoError(t, repo.Conn.Create(item).Error)
	}

	items, err := repo.ListReadyQueueItems(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Text)
	assert.Equal(t, "a", items[1].Text)
}

func TestLocks(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()

	ok, err := repo.TryAcquireLock(ctx, "job:sync", "one", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryAcquireLock(ctx, "job:sync", "two", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// only the holder can release
	require.NoError(t, repo.ReleaseLock(ctx, "job:sync", "two"))
	ok, err = repo.TryAcquireLock(ctx, "job:sync", "two", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.ReleaseLock(ctx, "job:sync", "one"))
	ok, err = repo.TryAcquireLock(ctx, "job:sync", "two", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	stale := models.AppLock{
		LockName:   "job:stale",
		InstanceID: "dead",
		AcquiredAt: time.Now().Add(-time.Hour).Unix(),
		ExpiresAt:  time.Now().Add(-time.Minute).Unix(),
	}
	require.True(t, stale.Expired(time.Now()))
	require.NoError(t, repo.Conn.Create(&stale).Error)

	ok, err := repo.TryAcquireLock(ctx, "job:stale", "alive", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	var held models.AppLock
	require.NoError(t, repo.Conn.Where("lock_name = ?", "job:stale").First(&held).Error)
	assert.Equal(t, "alive", held.InstanceID)
	assert.False(t, held.Expired(time.Now()))
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()

	created, err := repo.RecordWebhookEvent(ctx, &models.WebhookEvent{EventKey: "evt-1", EventType: "tip"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.RecordWebhookEvent(ctx, &models.WebhookEvent{EventKey: "evt-1", EventType: "tip"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestConnectionExpiryAndReconnect(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	creator := seedCreator(t, repo, "ava")

	require.NoError(t, repo.MarkConnectionExpired(ctx, creator.ID, models.ReconnectMessage))
	due, err := repo.ListDueCreators(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	reconnected, err := repo.UpsertConnectedCreator(ctx, &models.Creator{
		AgencyID:     "agency-1",
		FanvueUUID:   creator.FanvueUUID,
		Handle:       "ava",
		AccessToken:  "at",
		RefreshToken: "rt-new",
	})
	require.NoError(t, err)
	assert.Equal(t, creator.ID, reconnected.ID)
	assert.Equal(t, models.ConnectionActive, reconnected.ConnectionStatus)
	assert.Empty(t, reconnected.ConnectionError)

	due, err = repo.ListDueCreators(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestTrackingLinkSelectionUsesItsOwnSyncTime(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	ava := seedCreator(t, repo, "ava")
	bea := seedCreator(t, repo, "bea")
	cid := seedCreator(t, repo, "cid")

	// stats order is the reverse of tracking-link order
	require.NoError(t, repo.MarkTrackingLinksSynced(ctx, ava.ID, now.Add(-time.Minute)))
	require.NoError(t, repo.MarkTrackingLinksSynced(ctx, bea.ID, now.Add(-time.Hour)))
	require.NoError(t, repo.UpdateCreatorStats(ctx, ava.ID, models.CreatorStats{}, now.Add(-time.Hour)))
	require.NoError(t, repo.UpdateCreatorStats(ctx, bea.ID, models.CreatorStats{}, now.Add(-time.Minute)))

	due, err := repo.ListTrackingLinkDueCreators(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []string{cid.ID, bea.ID, ava.ID}, []string{due[0].ID, due[1].ID, due[2].ID})

	active, err := repo.ListActiveCreators(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []string{cid.ID, ava.ID, bea.ID}, []string{active[0].ID, active[1].ID, active[2].ID})
}
