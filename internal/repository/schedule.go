package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/onyxos/onyxsync/internal/models"
)

func (db *PostgresDB) ListLateShifts(ctx context.Context, startedBefore time.Time) ([]*models.Shift, error) {
	var shifts []*models.Shift
	if err := db.Conn.WithContext(ctx).
		Where("starts_at < ? AND clocked_in_at IS NULL AND late_alerted_at IS NULL", startedBefore).
		Order("starts_at ASC").
		Find(&shifts).Error; err != nil {
		return nil, fmt.Errorf("failed to list late shifts: %w", err)
	}
	return shifts, nil
}

func (db *PostgresDB) MarkShiftLateAlerted(ctx context.Context, id string, at time.Time) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Shift{}).Where("id = ?", id).Update("late_alerted_at", at).Error; err != nil {
		return fmt.Errorf("failed to mark shift alerted: %w", err)
	}
	return nil
}

func (db *PostgresDB) ListMissedPosts(ctx context.Context, scheduledBefore time.Time) ([]*models.ScheduledPost, error) {
	var posts []*models.ScheduledPost
	if err := db.Conn.WithContext(ctx).
		Where("scheduled_for < ? AND posted_at IS NULL AND missed_alerted_at IS NULL", scheduledBefore).
		Order("scheduled_for ASC").
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to list missed posts: %w", err)
	}
	return posts, nil
}

func (db *PostgresDB) MarkPostMissedAlerted(ctx context.Context, id string, at time.Time) error {
	if err := db.Conn.WithContext(ctx).Model(&models.ScheduledPost{}).Where("id = ?", id).Update("missed_alerted_at", at).Error; err != nil {
		return fmt.Errorf("failed to mark post alerted: %w", err)
	}
	return nil
}
