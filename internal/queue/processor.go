// Package queue delivers the outbound message queue to Fanvue chats.
package queue

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/retry"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	DefaultBatchSize   = 20
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Minute
	DefaultMinPause    = time.Second
	DefaultMaxPause    = 5 * time.Second
	DefaultStaleAfter  = 15 * time.Minute
)

// Sender delivers one queued message.
type Sender interface {
	Send(ctx context.Context, item *models.QueueItem) error
}

type Options struct {
	BatchSize int
	// Retry.MaxAttempts is the send budget of an item and Retry.BaseDelay the
	// wait before it is picked up again.
	Retry retry.Policy
	// A random pause in [MinPause, MaxPause] follows every successful send.
	MinPause time.Duration
	MaxPause time.Duration
	// StaleAfter returns items stuck in processing to pending.
	StaleAfter time.Duration
}

// BatchResult is the outcome of one ProcessBatch call.
type BatchResult struct {
	Recovered          int64    `json:"recovered"`
	Picked             int      `json:"picked"`
	Sent               int      `json:"sent"`
	Retried            int      `json:"retried"`
	Failed             int      `json:"failed"`
	Skipped            int      `json:"skipped"`
	Halted             bool     `json:"halted"`
	CompletedCampaigns []string `json:"completed_campaigns,omitempty"`
}

// Processor drains due queue items one at a time.
type Processor struct {
	logger *logger.Logger
	repo   models.QueueRepository
	sender Sender
	opts   Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	pause func() time.Duration
}

func NewProcessor(repo models.QueueRepository, sender Sender, opts Options, logger *logger.Logger) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = DefaultRetryDelay
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = func(err error) bool { return !tokens.IsTerminal(err) }
	}
	if opts.MinPause <= 0 {
		opts.MinPause = DefaultMinPause
	}
	if opts.MaxPause < opts.MinPause {
		opts.MaxPause = opts.MinPause
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}

	p := &Processor{
		logger: logger,
		repo:   repo,
		sender: sender,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  retry.Sleep,
	}
	p.pause = func() time.Duration {
		span := p.opts.MaxPause - p.opts.MinPause
		if span <= 0 {
			return p.opts.MinPause
		}
		return p.opts.MinPause + time.Duration(rand.Int63n(int64(span+1)))
	}
	return p
}

// ProcessBatch recovers stale items, then sends up to BatchSize due items in
// schedule order. A rate-limited send puts its item back and stops the batch
// so the remaining items are not attempted against an exhausted quota.
func (p *Processor) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{}
	now := p.now()

	recovered, err := p.repo.RecoverStaleQueueItems(ctx, now.Add(-p.opts.StaleAfter))
	if err != nil {
		return result, err
	}
	result.Recovered = recovered
	if recovered > 0 {
		p.logger.Warn("Recovered stale queue items", "count", recovered)
	}

	items, err := p.repo.ListReadyQueueItems(ctx, now, p.opts.BatchSize)
	if err != nil {
		return result, err
	}
	result.Picked = len(items)

	touched := make(map[string]struct{})
	for i, item := range items {
		if ctx.Err() != nil {
			result.Halted = true
			break
		}

		err := p.repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{From: models.QueuePending, To: models.QueueProcessing})
		if errors.Is(err, models.ErrInvalidTransition) {
			// Claimed by a concurrent run.
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		if item.CampaignID != nil {
			touched[*item.CampaignID] = struct{}{}
		}

		sendErr := p.sender.Send(ctx, item)
		if sendErr == nil {
			sentAt := p.now()
			if err := p.repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{
				From: models.QueueProcessing, To: models.QueueSent, SentAt: &sentAt,
			}); err != nil {
				return result, err
			}
			result.Sent++
			if i < len(items)-1 {
				if err := p.sleep(ctx, p.pause()); err != nil {
					result.Halted = true
					break
				}
			}
			continue
		}

		halt, err := p.handleFailure(ctx, item, sendErr, result)
		if err != nil {
			return result, err
		}
		if halt {
			result.Halted = true
			break
		}
	}

	campaigns := make([]string, 0, len(touched))
	for id := range touched {
		campaigns = append(campaigns, id)
	}
	sort.Strings(campaigns)
	for _, id := range campaigns {
		done, err := p.repo.CompleteCampaignIfDone(ctx, id, p.now())
		if err != nil {
			p.logger.Error("Failed to complete campaign", "campaign_id", id, "error", err)
			continue
		}
		if done {
			result.CompletedCampaigns = append(result.CompletedCampaigns, id)
		}
	}

	p.logger.Info("Queue batch finished",
		"picked", result.Picked, "sent", result.Sent, "retried", result.Retried,
		"failed", result.Failed, "halted", result.Halted)
	return result, nil
}

func (p *Processor) handleFailure(ctx context.Context, item *models.QueueItem, sendErr error, result *BatchResult) (bool, error) {
	retries := item.RetryCount + 1
	message := sendErr.Error()

	if fanvue.IsRateLimited(sendErr) {
		p.logger.Warn("Rate limited while sending, halting batch", "item_id", item.ID, "error", sendErr)
		result.Retried++
		limits := item.RateLimits + 1
		return true, p.repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{
			From: models.QueueProcessing, To: models.QueuePending,
			RetryCount: &retries, RateLimits: &limits, LastError: &message,
		})
	}

	if item.Attempts()+1 >= p.opts.Retry.Attempts() || !p.opts.Retry.ShouldRetry(sendErr) {
		p.logger.Error("Queue item failed permanently", "item_id", item.ID, "attempts", item.Attempts()+1, "error", sendErr)
		result.Failed++
		return false, p.repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{
			From: models.QueueProcessing, To: models.QueueFailed,
			RetryCount: &retries, LastError: &message,
		})
	}

	next := p.now().Add(p.opts.Retry.BaseDelay)
	p.logger.Warn("Queue item send failed, rescheduled", "item_id", item.ID, "attempt", item.Attempts()+1, "next", next, "error", sendErr)
	result.Retried++
	return false, p.repo.TransitionQueueItem(ctx, item.ID, models.QueueUpdate{
		From: models.QueueProcessing, To: models.QueuePending,
		RetryCount: &retries, LastError: &message, ScheduledFor: &next,
	})
}
