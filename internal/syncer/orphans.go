package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/notificator"
	"github.com/onyxos/onyxsync/pkg/logger"
	"github.com/onyxos/onyxsync/pkg/validation"
)

// OrphanStore is what orphan repair needs from persistence.
type OrphanStore interface {
	models.CreatorRepository
	models.TransactionRepository
}

// RepairResult reports one agency's repair. Unattributed lists the upstream
// ids of transactions no heuristic could place; they stay orphaned.
type RepairResult struct {
	AgencyID     string   `json:"agency_id"`
	Assigned     int64    `json:"assigned"`
	Unattributed []string `json:"unattributed,omitempty"`
}

// OrphanRepairer re-attributes transactions without an owning creator.
type OrphanRepairer struct {
	logger  *logger.Logger
	store   OrphanStore
	alerter notificator.Alerter
}

func NewOrphanRepairer(store OrphanStore, alerter notificator.Alerter, logger *logger.Logger) *OrphanRepairer {
	if alerter == nil {
		alerter = notificator.Noop{}
	}
	return &OrphanRepairer{logger: logger, store: store, alerter: alerter}
}

// RepairOrphans applies two heuristics in order: a single-creator agency
// owns every orphan; otherwise the counterparty handle must match a creator
// handle. Nothing is guessed beyond that.
func (o *OrphanRepairer) RepairOrphans(ctx context.Context, agencyID string) (*RepairResult, error) {
	result := &RepairResult{AgencyID: agencyID}

	orphans, err := o.store.ListOrphanedTransactions(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if len(orphans) == 0 {
		return result, nil
	}
	creators, err := o.store.ListAgencyCreators(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	assignments := make(map[string][]uint)
	switch len(creators) {
	case 0:
		for _, tx := range orphans {
			result.Unattributed = append(result.Unattributed, tx.UpstreamID)
		}
	case 1:
		for _, tx := range orphans {
			assignments[creators[0].ID] = append(assignments[creators[0].ID], tx.ID)
		}
	default:
		byHandle := make(map[string]string, len(creators))
		for _, c := range creators {
			if h := validation.NormalizeHandle(c.Handle); h != "" {
				byHandle[h] = c.ID
			}
		}
		for _, tx := range orphans {
			creatorID, ok := byHandle[validation.NormalizeHandle(tx.CounterpartyHandle)]
			if !ok {
				result.Unattributed = append(result.Unattributed, tx.UpstreamID)
				continue
			}
			assignments[creatorID] = append(assignments[creatorID], tx.ID)
		}
	}

	for creatorID, ids := range assignments {
		n, err := o.store.AssignTransactions(ctx, creatorID, ids)
		if err != nil {
			return result, err
		}
		result.Assigned += n
		if _, err := o.store.RecomputeRevenue(ctx, creatorID); err != nil {
			return result, err
		}
	}

	o.logger.Info("Orphan repair finished", "agency_id", agencyID,
		"assigned", result.Assigned, "unattributed", len(result.Unattributed))
	return result, nil
}

// RepairAll repairs every agency holding orphans and raises one alert for
// transactions that remain unattributed.
func (o *OrphanRepairer) RepairAll(ctx context.Context) ([]*RepairResult, *models.BatchSummary, error) {
	summary := models.NewBatchSummary("repair-orphans")

	agencies, err := o.store.ListAgenciesWithOrphans(ctx)
	if err != nil {
		return nil, summary, err
	}

	var (
		results      []*RepairResult
		unattributed []string
	)
	for _, agencyID := range agencies {
		res, err := o.RepairOrphans(ctx, agencyID)
		summary.Record(agencyID, err)
		if err != nil {
			o.logger.Error("Orphan repair failed", "agency_id", agencyID, "error", err)
			continue
		}
		results = append(results, res)
		if n := len(res.Unattributed); n > 0 {
			unattributed = append(unattributed, fmt.Sprintf("%s (%d)", agencyID, n))
		}
	}

	if len(unattributed) > 0 {
		o.alerter.Alert(ctx, "Unattributed Fanvue transactions need manual review: "+strings.Join(unattributed, ", "))
	}
	return results, summary, nil
}
