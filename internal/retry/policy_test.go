package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

type hinted struct{ wait time.Duration }

func (h hinted) Error() string             { return "slow down" }
func (h hinted) RetryAfter() time.Duration { return h.wait }

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(attempt int) error {
		calls++
		require.Equal(t, calls, attempt)
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	permanent := errors.New("bad request")
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}

	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursDelayHint(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Hour, MaxDelay: time.Hour}

	start := time.Now()
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls == 1 {
			return hinted{wait: 5 * time.Millisecond}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayDoubles(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
}

func TestDoWaitsForHintBeyondMaxDelay(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	start := time.Now()
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls == 1 {
			return hinted{wait: 40 * time.Millisecond}
		}
		return nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDoGivesUpWhenHintPassesDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	start := time.Now()
	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		return hinted{wait: time.Hour}
	})

	var h hinted
	require.ErrorAs(t, err, &h)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}
