package checks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/testutil"
	"github.com/onyxos/onyxsync/pkg/logger"
)

type alerts struct {
	messages []string
}

func (a *alerts) Alert(_ context.Context, message string) {
	a.messages = append(a.messages, message)
}

func TestCheckLateShiftsAlertsOnce(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	clockedIn := now.Add(-50 * time.Minute)

	require.NoError(t, repo.Conn.Create([]*models.Shift{
		{ID: "late", AgencyID: "a", ChatterName: "Mia", StartsAt: now.Add(-time.Hour)},
		{ID: "on-time", AgencyID: "a", ChatterName: "Leo", StartsAt: now.Add(-time.Hour), ClockedInAt: &clockedIn},
		{ID: "grace", AgencyID: "a", ChatterName: "Zoe", StartsAt: now.Add(-5 * time.Minute)},
	}).Error)

	alerter := &alerts{}
	c := NewChecker(repo, alerter, 0, 0, logger.NewNop())

	summary, err := c.CheckLateShifts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], "Mia")

	summary, err = c.CheckLateShifts(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Len(t, alerter.messages, 1)
}

func TestCheckMissedPostsAlertsOnce(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()
	posted := now.Add(-time.Hour)

	require.NoError(t, repo.Conn.Create([]*models.ScheduledPost{
		{ID: "missed", CreatorID: "c1", Caption: "beach day", ScheduledFor: now.Add(-2 * time.Hour)},
		{ID: "posted", CreatorID: "c1", Caption: "gym", ScheduledFor: now.Add(-2 * time.Hour), PostedAt: &posted},
		{ID: "upcoming", CreatorID: "c1", Caption: "later", ScheduledFor: now.Add(time.Hour)},
	}).Error)

	alerter := &alerts{}
	c := NewChecker(repo, alerter, 0, 0, logger.NewNop())

	_, err := c.CheckMissedPosts(ctx)
	require.NoError(t, err)
	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], "beach day")

	_, err = c.CheckMissedPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerter.messages, 1)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
}
