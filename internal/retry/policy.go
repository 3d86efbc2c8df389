// Package retry holds the single retry/backoff policy shared by the Fanvue
// client, the paginated fetcher and the queue processor.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times an operation is attempted, how long to
// wait between attempts and which errors are worth another attempt.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single attempt.
	MaxAttempts int
	// BaseDelay is the first wait; later waits double up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Retryable decides whether err deserves another attempt. A nil func
	// retries every error.
	Retryable func(err error) bool
}

// DelayHinter is implemented by errors that know how long the caller should
// wait, such as a rate-limit error carrying the upstream reset time.
type DelayHinter interface {
	RetryAfter() time.Duration
}

// Attempts returns the effective number of attempts.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ShouldRetry reports whether err is retryable under the policy.
func (p Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Delay returns the exponential wait before attempt n+1 (n starts at 1).
func (p Policy) Delay(n int) time.Duration {
	b := p.newBackOff()
	d := b.NextBackOff()
	for i := 1; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// are used up or ctx is done. The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) error {
	var hint time.Duration
	attempt := 0

	operation := func() error {
		attempt++
		err := op(attempt)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err) {
			return backoff.Permanent(err)
		}
		var hinter DelayHinter
		if errors.As(err, &hinter) {
			hint = hinter.RetryAfter()
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&hintedBackOff{BackOff: p.newBackOff(), hint: &hint, ctx: ctx}, uint64(p.Attempts()-1)),
		ctx,
	)
	err := backoff.Retry(operation, b)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// hintedBackOff prefers a delay announced by the failed call over the
// exponential schedule. MaxDelay does not cap a hint: retrying before the
// announced time fails again. When the hint ends after the ctx deadline the
// retries stop and the last error is returned.
type hintedBackOff struct {
	backoff.BackOff
	hint *time.Duration
	ctx  context.Context
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if *h.hint > 0 {
		next = *h.hint
		*h.hint = 0
		if deadline, ok := h.ctx.Deadline(); ok && time.Until(deadline) < next {
			return backoff.Stop
		}
	}
	return next
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
