package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

func TestSelectDueOrdersNeverSyncedFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	old := env.seedCreator(t, "a", "old", ptr(now.Add(-5*time.Hour)))
	older := env.seedCreator(t, "a", "older", ptr(now.Add(-10*time.Hour)))
	fresh := env.seedCreator(t, "a", "fresh", ptr(now.Add(-10*time.Minute)))
	never := env.seedCreator(t, "a", "never", nil)
	expired := env.seedCreator(t, "a", "expired", nil)
	require.NoError(t, env.repo.MarkConnectionExpired(ctx, expired.ID, models.ReconnectMessage))
	noToken := env.seedCreator(t, "a", "notoken", nil)
	require.NoError(t, env.repo.Conn.Model(noToken).Update("refresh_token", "").Error)

	ids, err := env.scheduler.SelectDue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{never.ID, older.ID, old.ID}, ids)
	assert.NotContains(t, ids, fresh.ID)
}

func TestSelectDueIsCapped(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 60; i++ {
		env.seedCreator(t, "a", fmt.Sprintf("c%02d", i), nil)
	}

	ids, err := env.scheduler.SelectDue(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, ids, DefaultBatchSize)

	ids, err = env.scheduler.SelectDue(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, ids, 5)
}

func TestRunIsolatesFailures(t *testing.T) {
	s := NewScheduler(nil, SchedulerOptions{ItemDelay: time.Millisecond}, logger.NewNop())

	var seen []string
	summary := s.Run(context.Background(), "job", []string{"a", "b", "c"}, func(_ context.Context, id string) error {
		seen = append(seen, id)
		if id == "b" {
			return errors.New("upstream exploded")
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, map[string]string{"b": "upstream exploded"}, summary.Errors)
	assert.False(t, summary.Halted)
}

func TestRunPacesItems(t *testing.T) {
	s := NewScheduler(nil, SchedulerOptions{ItemDelay: 20 * time.Millisecond}, logger.NewNop())

	start := time.Now()
	s.Run(context.Background(), "job", []string{"a", "b", "c"}, func(context.Context, string) error { return nil })
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestRunWaitsAfterSlowItems(t *testing.T) {
	delay := 30 * time.Millisecond
	s := NewScheduler(nil, SchedulerOptions{ItemDelay: delay}, logger.NewNop())

	var starts, ends []time.Time
	s.Run(context.Background(), "job", []string{"a", "b", "c"}, func(context.Context, string) error {
		starts = append(starts, time.Now())
		time.Sleep(2 * delay)
		ends = append(ends, time.Now())
		return nil
	})

	require.Len(t, starts, 3)
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), delay, "gap before item %d", i)
	}
}

func TestRunSleepsOnlyBetweenItems(t *testing.T) {
	s := NewScheduler(nil, SchedulerOptions{ItemDelay: time.Second}, logger.NewNop())
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	s.Run(context.Background(), "job", []string{"a", "b", "c"}, func(context.Context, string) error { return nil })
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
}

func TestRunHaltsWhenContextIsDone(t *testing.T) {
	s := NewScheduler(nil, SchedulerOptions{ItemDelay: time.Hour}, logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary := s.Run(ctx, "job", []string{"a", "b"}, func(context.Context, string) error { return nil })
	assert.True(t, summary.Halted)
	assert.Equal(t, 1, summary.Processed)
}
