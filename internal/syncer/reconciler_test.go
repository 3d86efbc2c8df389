package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	creator := env.seedCreator(t, "agency", "ava", nil)
	r := NewReconciler(env.repo, logger.NewNop())

	batch := txs("e", "agency", &creator.ID, 20, func(i int) int64 { return int64(100 + i) })

	first := r.Reconcile(ctx, creator.ID, batch)
	require.True(t, first.Success, first.Errors)
	second := r.Reconcile(ctx, creator.ID, batch)
	require.True(t, second.Success, second.Errors)

	count, err := env.repo.CountTransactions(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
	assert.Equal(t, first.Revenue, second.Revenue)
	assert.Equal(t, int64(20*100+190), second.Revenue)
}

func TestReconcileKeepsRevenueEqualToSum(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	creator := env.seedCreator(t, "agency", "ava", nil)
	other := env.seedCreator(t, "agency", "bea", nil)
	r := NewReconciler(env.repo, logger.NewNop())

	require.True(t, r.Reconcile(ctx, creator.ID, txs("a", "agency", &creator.ID, 5, func(int) int64 { return 999 })).Success)
	require.True(t, r.Reconcile(ctx, other.ID, txs("b", "agency", &other.ID, 3, func(int) int64 { return 1 })).Success)
	// Overlapping window: two known rows plus one new.
	res := r.Reconcile(ctx, creator.ID, append(
		txs("a", "agency", &creator.ID, 2, func(int) int64 { return 999 }),
		tx("a-new", "agency", &creator.ID, 1),
	))
	require.True(t, res.Success)

	var sum int64
	require.NoError(t, env.repo.Conn.Model(&models.Transaction{}).
		Where("model_id = ?", creator.ID).Select("SUM(amount)").Scan(&sum).Error)
	stored, err := env.repo.GetCreator(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, sum, stored.RevenueTotal)
	assert.Equal(t, int64(5*999+1), stored.RevenueTotal)

	stored, err = env.repo.GetCreator(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.RevenueTotal)
}

func TestReconcileDedupesWithinBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	creator := env.seedCreator(t, "agency", "ava", nil)
	r := NewReconciler(env.repo, logger.NewNop())

	res := r.Reconcile(ctx, creator.ID, []models.Transaction{
		tx("dup", "agency", &creator.ID, 10),
		tx("dup", "agency", &creator.ID, 10),
		tx("other", "agency", &creator.ID, 5),
	})
	require.True(t, res.Success, res.Errors)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, int64(15), res.Revenue)
}

func TestReconcileFillsOwnerOfKnownOrphan(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	creator := env.seedCreator(t, "agency", "ava", nil)
	r := NewReconciler(env.repo, logger.NewNop())

	require.NoError(t, env.repo.UpsertTransactions(ctx, []models.Transaction{tx("o-1", "agency", nil, 70)}))
	res := r.Reconcile(ctx, creator.ID, []models.Transaction{tx("o-1", "agency", &creator.ID, 70)})
	require.True(t, res.Success)
	assert.Equal(t, int64(70), res.Revenue)

	orphans, err := env.repo.ListOrphanedTransactions(ctx, "agency")
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestReconcileReportsMissingCreator(t *testing.T) {
	env := newTestEnv(t, nil)
	r := NewReconciler(env.repo, logger.NewNop())

	res := r.Reconcile(context.Background(), "nobody", []models.Transaction{tx("x", "agency", ptr("nobody"), 1)})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
}
