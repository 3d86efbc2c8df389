package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/onyxos/onyxsync/internal/models"
)

func (db *PostgresDB) RecordWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) ForgetWebhookEvent(ctx context.Context, id uint) error {
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.WebhookEvent{}).Error; err != nil {
		return fmt.Errorf("failed to forget webhook event: %w", err)
	}
	return nil
}

func (db *PostgresDB) MarkWebhookProcessed(ctx context.Context, id uint, at time.Time, errMsg string) error {
	if err := db.Conn.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at": at,
		"error":        errMsg,
	}).Error; err != nil {
		return fmt.Errorf("failed to mark webhook processed: %w", err)
	}
	return nil
}
