package onyx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxos/onyxsync/internal/checks"
	"github.com/onyxos/onyxsync/internal/config"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/notificator"
	"github.com/onyxos/onyxsync/internal/testutil"
	"github.com/onyxos/onyxsync/pkg/logger"
)

func newTestOnyx(t *testing.T) (*Onyx, models.Repository) {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	log := logger.NewNop()
	cfg := &config.Config{JobTimeout: time.Minute}
	o := NewOnyx(repo, Services{
		Checks: checks.NewChecker(repo, notificator.Noop{}, 0, 0, log),
	}, cfg, log)
	return o, repo
}

func TestRunJobRunsRegisteredJob(t *testing.T) {
	o, _ := newTestOnyx(t)

	assert.Equal(t, []string{JobCheckLateShifts, JobCheckMissedPosts}, o.Jobs())

	res, err := o.RunJob(context.Background(), JobCheckLateShifts)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	summary, ok := res.Result.(*models.BatchSummary)
	require.True(t, ok)
	assert.Equal(t, "check-late-shifts", summary.Job)
}

func TestRunJobRejectsUnknownJob(t *testing.T) {
	o, _ := newTestOnyx(t)

	_, err := o.RunJob(context.Background(), JobSyncTransactions)
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunJobSkipsWhileLeaseIsHeld(t *testing.T) {
	o, repo := newTestOnyx(t)
	ctx := context.Background()

	ok, err := repo.TryAcquireLock(ctx, "job:"+JobCheckMissedPosts, "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := o.RunJob(ctx, JobCheckMissedPosts)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	require.NoError(t, repo.ReleaseLock(ctx, "job:"+JobCheckMissedPosts, "other-instance"))
	res, err = o.RunJob(ctx, JobCheckMissedPosts)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	// The lease is released after the run.
	res, err = o.RunJob(ctx, JobCheckMissedPosts)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestRunJobRecoversPanics(t *testing.T) {
	o, _ := newTestOnyx(t)
	o.jobs["boom"] = func(context.Context) (interface{}, error) { panic("nil map") }

	_, err := o.RunJob(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// Lease was released despite the panic.
	o.jobs["boom"] = func(context.Context) (interface{}, error) { return nil, nil }
	res, err := o.RunJob(context.Background(), "boom")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestEveryJobHasASchedule(t *testing.T) {
	for _, name := range []string{
		JobRefreshTokens, JobSyncTransactions, JobSyncTrackingLinks, JobSyncStats,
		JobProcessQueue, JobRepairOrphans, JobCheckLateShifts, JobCheckMissedPosts,
	} {
		assert.NotEmpty(t, DefaultSchedules[name], name)
	}
}

func TestStartSchedulesJobs(t *testing.T) {
	o, _ := newTestOnyx(t)
	require.NoError(t, o.Start())
	assert.Len(t, o.cron.Entries(), 2)
	o.Stop()
}
