// Package checks raises alerts for shifts nobody clocked into and scheduled
// posts that never went out. Each row is alerted once.
package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/notificator"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	DefaultLateShiftGrace  = 15 * time.Minute
	DefaultMissedPostGrace = 30 * time.Minute
)

type Checker struct {
	logger  *logger.Logger
	repo    models.ScheduleRepository
	alerter notificator.Alerter

	shiftGrace time.Duration
	postGrace  time.Duration

	now func() time.Time
}

func NewChecker(repo models.ScheduleRepository, alerter notificator.Alerter, shiftGrace, postGrace time.Duration, logger *logger.Logger) *Checker {
	if shiftGrace <= 0 {
		shiftGrace = DefaultLateShiftGrace
	}
	if postGrace <= 0 {
		postGrace = DefaultMissedPostGrace
	}
	if alerter == nil {
		alerter = notificator.Noop{}
	}
	return &Checker{
		logger:     logger,
		repo:       repo,
		alerter:    alerter,
		shiftGrace: shiftGrace,
		postGrace:  postGrace,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CheckLateShifts alerts for shifts that started more than the grace period
// ago without a clock-in.
func (c *Checker) CheckLateShifts(ctx context.Context) (*models.BatchSummary, error) {
	summary := models.NewBatchSummary("check-late-shifts")
	now := c.now()

	shifts, err := c.repo.ListLateShifts(ctx, now.Add(-c.shiftGrace))
	if err != nil {
		return summary, err
	}
	for _, shift := range shifts {
		late := now.Sub(shift.StartsAt).Truncate(time.Minute)
		c.alerter.Alert(ctx, fmt.Sprintf("Late shift: %s has not clocked in, shift started %s ago (%s UTC)",
			shift.ChatterName, late, shift.StartsAt.UTC().Format("2006-01-02 15:04")))
		summary.Record(shift.ID, c.repo.MarkShiftLateAlerted(ctx, shift.ID, now))
	}
	if len(shifts) > 0 {
		c.logger.Info("Late shifts alerted", "count", len(shifts))
	}
	return summary, nil
}

// CheckMissedPosts alerts for scheduled posts still unpublished after the
// grace period.
func (c *Checker) CheckMissedPosts(ctx context.Context) (*models.BatchSummary, error) {
	summary := models.NewBatchSummary("check-missed-posts")
	now := c.now()

	posts, err := c.repo.ListMissedPosts(ctx, now.Add(-c.postGrace))
	if err != nil {
		return summary, err
	}
	for _, post := range posts {
		c.alerter.Alert(ctx, fmt.Sprintf("Missed post for creator %s scheduled at %s UTC: %q",
			post.CreatorID, post.ScheduledFor.UTC().Format("2006-01-02 15:04"), truncate(post.Caption, 80)))
		summary.Record(post.ID, c.repo.MarkPostMissedAlerted(ctx, post.ID, now))
	}
	if len(posts) > 0 {
		c.logger.Info("Missed posts alerted", "count", len(posts))
	}
	return summary, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
