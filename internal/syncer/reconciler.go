package syncer

import (
	"context"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

// ReconcileResult is the typed outcome of one reconciliation. Batch callers
// inspect it instead of handling raised errors.
type ReconcileResult struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Revenue int64    `json:"revenue"`
	Errors  []string `json:"errors,omitempty"`
}

// Reconciler writes upstream transactions and keeps each creator's revenue
// total equal to the sum of its transactions.
type Reconciler struct {
	logger *logger.Logger
	txs    models.TransactionRepository
}

func NewReconciler(txs models.TransactionRepository, logger *logger.Logger) *Reconciler {
	return &Reconciler{logger: logger, txs: txs}
}

// Reconcile upserts txs keyed by upstream id and recomputes the revenue of
// creatorID. Reconciling the same set twice leaves the store unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, creatorID string, txs []models.Transaction) ReconcileResult {
	var result ReconcileResult

	unique := dedupe(txs, func(tx models.Transaction) string { return tx.UpstreamID })
	if err := r.txs.UpsertTransactions(ctx, unique); err != nil {
		r.logger.Error("Failed to upsert transactions", "creator_id", creatorID, "count", len(unique), "error", err)
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Count = len(unique)

	revenue, err := r.txs.RecomputeRevenue(ctx, creatorID)
	if err != nil {
		r.logger.Error("Failed to recompute revenue", "creator_id", creatorID, "error", err)
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Revenue = revenue
	result.Success = true
	return result
}

// dedupe keeps the last occurrence of every key, in first-seen order; a
// single upsert statement may not touch the same row twice.
func dedupe[T any](items []T, key func(T) string) []T {
	index := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if i, ok := index[k]; ok {
			out[i] = item
			continue
		}
		index[k] = len(out)
		out = append(out, item)
	}
	return out
}
