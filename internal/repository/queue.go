package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/onyxos/onyxsync/internal/models"
)

func (db *PostgresDB) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to get queue item %s: %w", id, notFound(err))
	}
	return &item, nil
}

func (db *PostgresDB) ListReadyQueueItems(ctx context.Context, now time.Time, limit int) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := db.Conn.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.QueuePending, now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list ready queue items: %w", err)
	}
	return items, nil
}

func (db *PostgresDB) TransitionQueueItem(ctx context.Context, id string, update models.QueueUpdate) error {
	if err := models.ValidateQueueTransition(update.From, update.To); err != nil {
		return err
	}

	columns := map[string]interface{}{
		"status":     update.To,
		"updated_at": time.Now().UTC(),
	}
	if update.RetryCount != nil {
		columns["retry_count"] = *update.RetryCount
	}
	if update.RateLimits != nil {
		columns["rate_limits"] = *update.RateLimits
	}
	if update.LastError != nil {
		columns["last_error"] = *update.LastError
	}
	if update.ScheduledFor != nil {
		columns["scheduled_for"] = *update.ScheduledFor
	}
	if update.SentAt != nil {
		columns["sent_at"] = *update.SentAt
	}

	// The status guard makes the move a compare-and-swap.
	res := db.Conn.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, update.From).
		Updates(columns)
	if res.Error != nil {
		return fmt.Errorf("failed to update queue item %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: queue item %s is no longer %s", models.ErrInvalidTransition, id, update.From)
	}
	return nil
}

func (db *PostgresDB) RecoverStaleQueueItems(ctx context.Context, staleBefore time.Time) (int64, error) {
	if err := models.ValidateQueueTransition(models.QueueProcessing, models.QueuePending); err != nil {
		return 0, err
	}
	res := db.Conn.WithContext(ctx).Model(&models.QueueItem{}).
		Where("status = ? AND updated_at < ?", models.QueueProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":     models.QueuePending,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover stale queue items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *PostgresDB) CompleteCampaignIfDone(ctx context.Context, campaignID string, at time.Time) (bool, error) {
	var open int64
	if err := db.Conn.WithContext(ctx).Model(&models.QueueItem{}).
		Where("campaign_id = ? AND status NOT IN ?", campaignID, []models.QueueStatus{models.QueueSent, models.QueueFailed}).
		Count(&open).Error; err != nil {
		return false, fmt.Errorf("failed to count open campaign items: %w", err)
	}
	if open > 0 {
		return false, nil
	}
	res := db.Conn.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status <> ?", campaignID, models.CampaignCompleted).
		Updates(map[string]interface{}{
			"status":       models.CampaignCompleted,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete campaign: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
