package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onyxos/onyxsync/internal/models"
)

func (db *PostgresDB) GetCreator(ctx context.Context, id string) (*models.Creator, error) {
	var creator models.Creator
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&creator).Error; err != nil {
		return nil, fmt.Errorf("failed to get creator %s: %w", id, notFound(err))
	}
	return &creator, nil
}

func (db *PostgresDB) GetCreatorByFanvueUUID(ctx context.Context, fanvueUUID string) (*models.Creator, error) {
	var creator models.Creator
	if err := db.Conn.WithContext(ctx).Where("fanvue_uuid = ?", fanvueUUID).First(&creator).Error; err != nil {
		return nil, fmt.Errorf("failed to get creator by fanvue uuid: %w", notFound(err))
	}
	return &creator, nil
}

func (db *PostgresDB) SaveTokens(ctx context.Context, creatorID string, pair models.TokenPair) error {
	expiresAt := pair.ExpiresAt
	res := db.Conn.WithContext(ctx).Model(&models.Creator{}).
		Where("id = ?", creatorID).
		Updates(map[string]interface{}{
			"access_token":     pair.AccessToken,
			"refresh_token":    pair.RefreshToken,
			"token_expires_at": &expiresAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save tokens: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to save tokens for creator %s: %w", creatorID, models.ErrNotFound)
	}
	return nil
}

func (db *PostgresDB) MarkConnectionExpired(ctx context.Context, creatorID, reason string) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creator models.Creator
		if err := tx.Select("id", "connection_status").Where("id = ?", creatorID).First(&creator).Error; err != nil {
			return fmt.Errorf("failed to get creator %s: %w", creatorID, notFound(err))
		}
		if !creator.ConnectionStatus.CanTransition(models.ConnectionExpired) {
			return fmt.Errorf("%w: connection %s -> %s", models.ErrInvalidTransition, creator.ConnectionStatus, models.ConnectionExpired)
		}
		if err := tx.Model(&models.Creator{}).Where("id = ?", creatorID).Updates(map[string]interface{}{
			"connection_status": models.ConnectionExpired,
			"connection_error":  reason,
		}).Error; err != nil {
			return fmt.Errorf("failed to mark connection expired: %w", err)
		}
		return nil
	})
}

func (db *PostgresDB) ListCreatorsWithExpiringTokens(ctx context.Context, before time.Time, limit int) ([]*models.Creator, error) {
	var creators []*models.Creator
	if err := db.Conn.WithContext(ctx).
		Where("connection_status = ? AND refresh_token <> ''", models.ConnectionActive).
		Where("token_expires_at IS NULL OR token_expires_at < ?", before).
		Order("token_expires_at ASC").
		Limit(limit).
		Find(&creators).Error; err != nil {
		return nil, fmt.Errorf("failed to list creators with expiring tokens: %w", err)
	}
	return creators, nil
}

func (db *PostgresDB) UpsertConnectedCreator(ctx context.Context, creator *models.Creator) (*models.Creator, error) {
	creator.ConnectionStatus = models.ConnectionActive
	creator.ConnectionError = ""
	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fanvue_uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"handle", "display_name", "access_token", "refresh_token",
			"token_expires_at", "connection_status", "connection_error", "updated_at",
		}),
	}).Create(creator).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert creator: %w", err)
	}
	// The conflict path keeps the stored id, so read the row back.
	return db.GetCreatorByFanvueUUID(ctx, creator.FanvueUUID)
}

func (db *PostgresDB) ListDueCreators(ctx context.Context, staleBefore time.Time, limit int) ([]*models.Creator, error) {
	var creators []*models.Creator
	if err := db.Conn.WithContext(ctx).
		Where("connection_status = ? AND refresh_token <> ''", models.ConnectionActive).
		Where("last_transaction_sync IS NULL OR last_transaction_sync < ?", staleBefore).
		// never synced first, then oldest sync first
		Order("last_transaction_sync IS NOT NULL").
		Order("last_transaction_sync ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&creators).Error; err != nil {
		return nil, fmt.Errorf("failed to list due creators: %w", err)
	}
	return creators, nil
}

func (db *PostgresDB) ListActiveCreators(ctx context.Context, limit int) ([]*models.Creator, error) {
	return db.listActiveBy(ctx, "stats_updated_at", limit)
}

func (db *PostgresDB) ListTrackingLinkDueCreators(ctx context.Context, limit int) ([]*models.Creator, error) {
	return db.listActiveBy(ctx, "last_tracking_link_sync", limit)
}

// listActiveBy lists active creators, never-synced first and then by the
// oldest value of the bookkeeping column.
func (db *PostgresDB) listActiveBy(ctx context.Context, column string, limit int) ([]*models.Creator, error) {
	var creators []*models.Creator
	if err := db.Conn.WithContext(ctx).
		Where("connection_status = ? AND refresh_token <> ''", models.ConnectionActive).
		Order(column + " IS NOT NULL").
		Order(column + " ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&creators).Error; err != nil {
		return nil, fmt.Errorf("failed to list active creators by %s: %w", column, err)
	}
	return creators, nil
}

func (db *PostgresDB) ListAgencyCreators(ctx context.Context, agencyID string) ([]*models.Creator, error) {
	var creators []*models.Creator
	if err := db.Conn.WithContext(ctx).Where("agency_id = ?", agencyID).Order("created_at ASC").Find(&creators).Error; err != nil {
		return nil, fmt.Errorf("failed to list agency creators: %w", err)
	}
	return creators, nil
}

func (db *PostgresDB) MarkTransactionsSynced(ctx context.Context, creatorID string, at time.Time) error {
	return db.touchCreator(ctx, creatorID, "last_transaction_sync", at)
}

func (db *PostgresDB) MarkTrackingLinksSynced(ctx context.Context, creatorID string, at time.Time) error {
	return db.touchCreator(ctx, creatorID, "last_tracking_link_sync", at)
}

func (db *PostgresDB) touchCreator(ctx context.Context, creatorID, column string, at time.Time) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Creator{}).Where("id = ?", creatorID).Update(column, at).Error; err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

func (db *PostgresDB) UpdateCreatorStats(ctx context.Context, creatorID string, stats models.CreatorStats, at time.Time) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Creator{}).Where("id = ?", creatorID).Updates(map[string]interface{}{
		"subscribers_count": stats.SubscribersCount,
		"followers_count":   stats.FollowersCount,
		"posts_count":       stats.PostsCount,
		"stats_updated_at":  at,
	}).Error; err != nil {
		return fmt.Errorf("failed to update creator stats: %w", err)
	}
	return nil
}

func (db *PostgresDB) InvalidateCreatorStats(ctx context.Context, creatorID string) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Creator{}).Where("id = ?", creatorID).Update("stats_updated_at", nil).Error; err != nil {
		return fmt.Errorf("failed to invalidate creator stats: %w", err)
	}
	return nil
}
