package syncer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

type alerts struct {
	mu       sync.Mutex
	messages []string
}

func (a *alerts) Alert(_ context.Context, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func TestRepairAssignsAllOrphansOfSingleCreatorAgency(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	creator := env.seedCreator(t, "solo", "ava", nil)
	require.NoError(t, env.repo.UpsertTransactions(ctx, txs("o", "solo", nil, 10, func(i int) int64 { return int64(i + 1) })))

	result, err := NewOrphanRepairer(env.repo, nil, logger.NewNop()).RepairOrphans(ctx, "solo")
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Assigned)
	assert.Empty(t, result.Unattributed)

	count, err := env.repo.CountTransactions(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)

	stored, err := env.repo.GetCreator(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(55), stored.RevenueTotal)
}

func TestRepairMatchesHandlesAndReportsTheRest(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	ava := env.seedCreator(t, "multi", "Ava", nil)
	env.seedCreator(t, "multi", "bea", nil)

	orphans := []models.Transaction{
		tx("m-1", "multi", nil, 10),
		tx("m-2", "multi", nil, 20),
		tx("m-3", "multi", nil, 30),
	}
	orphans[0].CounterpartyHandle = "@ava"
	orphans[1].CounterpartyHandle = " AVA "
	orphans[2].CounterpartyHandle = "zed"
	require.NoError(t, env.repo.UpsertTransactions(ctx, orphans))

	alerter := &alerts{}
	results, summary, err := NewOrphanRepairer(env.repo, alerter, logger.NewNop()).RepairAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].Assigned)
	assert.Equal(t, []string{"m-3"}, results[0].Unattributed)
	assert.Equal(t, 1, summary.Succeeded)

	stored, err := env.repo.GetCreator(ctx, ava.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), stored.RevenueTotal)

	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], "multi (1)")

	// The unattributed row is left alone, not guessed.
	left, err := env.repo.ListOrphanedTransactions(ctx, "multi")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "m-3", left[0].UpstreamID)
}

func TestRepairWithoutOrphansIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedCreator(t, "quiet", "ava", nil)

	alerter := &alerts{}
	results, summary, err := NewOrphanRepairer(env.repo, alerter, logger.NewNop()).RepairAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summary.Processed)
	assert.Empty(t, alerter.messages)
}
