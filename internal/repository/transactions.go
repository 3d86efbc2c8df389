package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onyxos/onyxsync/internal/models"
)

const upsertBatchSize = 100

func (db *PostgresDB) UpsertTransactions(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	err := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "upstream_id"}},
			// Transactions are immutable; only an orphan may gain an owner.
			DoUpdates: clause.Assignments(map[string]interface{}{
				"model_id": gorm.Expr("COALESCE(transactions.model_id, excluded.model_id)"),
			}),
		}).
		CreateInBatches(&txs, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert transactions: %w", err)
	}
	return nil
}

func (db *PostgresDB) RecomputeRevenue(ctx context.Context, creatorID string) (int64, error) {
	var total int64
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Transaction{}).
			Where("model_id = ?", creatorID).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&total).Error; err != nil {
			return fmt.Errorf("failed to sum transactions: %w", err)
		}
		res := tx.Model(&models.Creator{}).Where("id = ?", creatorID).Update("revenue_total", total)
		if res.Error != nil {
			return fmt.Errorf("failed to update revenue total: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("failed to update revenue total of %s: %w", creatorID, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (db *PostgresDB) CountTransactions(ctx context.Context, creatorID string) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Transaction{}).Where("model_id = ?", creatorID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (db *PostgresDB) ListOrphanedTransactions(ctx context.Context, agencyID string) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	if err := db.Conn.WithContext(ctx).
		Where("agency_id = ? AND model_id IS NULL", agencyID).
		Order("occurred_at ASC").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list orphaned transactions: %w", err)
	}
	return txs, nil
}

func (db *PostgresDB) ListAgenciesWithOrphans(ctx context.Context) ([]string, error) {
	var agencies []string
	if err := db.Conn.WithContext(ctx).Model(&models.Transaction{}).
		Where("model_id IS NULL").
		Distinct("agency_id").
		Order("agency_id").
		Pluck("agency_id", &agencies).Error; err != nil {
		return nil, fmt.Errorf("failed to list agencies with orphans: %w", err)
	}
	return agencies, nil
}

func (db *PostgresDB) AssignTransactions(ctx context.Context, creatorID string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Conn.WithContext(ctx).Model(&models.Transaction{}).
		Where("id IN ? AND model_id IS NULL", ids).
		Update("model_id", creatorID)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to assign transactions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *PostgresDB) UpsertTrackingLinks(ctx context.Context, links []models.TrackingLink) error {
	if len(links) == 0 {
		return nil
	}
	err := db.Conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "upstream_uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "url", "clicks", "subscribers", "earnings_cents", "synced_at",
			}),
		}).
		CreateInBatches(&links, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert tracking links: %w", err)
	}
	return nil
}
