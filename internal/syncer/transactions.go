package syncer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/retry"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const DefaultOverlap = 24 * time.Hour

// Store is the persistence surface used by the syncers.
type Store interface {
	models.CreatorRepository
	models.TransactionRepository
	models.TrackingLinkRepository
}

type FetchSettings struct {
	PageSize int
	MaxPages int
	// Overlap re-reads the tail of the previous window so late upstream
	// writes are not missed. Upserts make the overlap harmless.
	Overlap time.Duration
	// Retry applies to single pages; the zero value uses the fetcher default.
	Retry retry.Policy
}

// SyncResult describes one creator's transaction sync.
type SyncResult struct {
	CreatorID string         `json:"creator_id"`
	Pages     int            `json:"pages"`
	Records   int            `json:"records"`
	Upserted  int            `json:"upserted"`
	Revenue   int64          `json:"revenue"`
	Truncated bool           `json:"truncated,omitempty"`
	Totals    EarningsTotals `json:"totals"`
}

// TransactionSyncer pulls a creator's earnings incrementally and reconciles
// them page by page.
type TransactionSyncer struct {
	logger     *logger.Logger
	store      Store
	client     *fanvue.Client
	auth       *tokens.Authorizer
	scheduler  *Scheduler
	reconciler *Reconciler
	settings   FetchSettings

	now func() time.Time
}

func NewTransactionSyncer(store Store, client *fanvue.Client, auth *tokens.Authorizer, scheduler *Scheduler, settings FetchSettings, logger *logger.Logger) *TransactionSyncer {
	if settings.Overlap <= 0 {
		settings.Overlap = DefaultOverlap
	}
	return &TransactionSyncer{
		logger:     logger,
		store:      store,
		client:     client,
		auth:       auth,
		scheduler:  scheduler,
		reconciler: NewReconciler(store, logger),
		settings:   settings,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SyncDue syncs every due creator. One creator's failure never stops the
// others; the summary records it.
func (s *TransactionSyncer) SyncDue(ctx context.Context) (*models.BatchSummary, error) {
	ids, err := s.scheduler.SelectDue(ctx, 0)
	if err != nil {
		return models.NewBatchSummary("sync-transactions"), err
	}
	return s.scheduler.Run(ctx, "sync-transactions", ids, func(ctx context.Context, id string) error {
		_, err := s.SyncCreator(ctx, id)
		return err
	}), nil
}

// SyncCreator fetches earnings since the last sync minus the overlap. The
// sync timestamp advances to the cycle start only after a complete fetch;
// pages reconciled before a failure stay persisted.
func (s *TransactionSyncer) SyncCreator(ctx context.Context, creatorID string) (*SyncResult, error) {
	started := s.now()
	result := &SyncResult{CreatorID: creatorID}

	err := s.auth.WithToken(ctx, creatorID, func(ctx context.Context, creator *models.Creator, token string) error {
		// A retry after a 401 starts over from the first page.
		*result = SyncResult{CreatorID: creatorID}
		query := url.Values{}
		if creator.LastTransactionSync != nil {
			since := creator.LastTransactionSync.UTC().Add(-s.settings.Overlap)
			query.Set("startDate", since.Format(time.RFC3339))
		}

		fetched, err := fanvue.FetchAll(ctx, s.client, token, fanvue.EarningsPath(creator.FanvueUUID), fanvue.FetchOptions{
			PageSize: s.settings.PageSize,
			MaxPages: s.settings.MaxPages,
			Policy:   s.settings.Retry,
			Query:    query,
		}, func(page []fanvue.Earning) error {
			txs := make([]models.Transaction, 0, len(page))
			for _, e := range page {
				result.Totals.Add(e)
				txs = append(txs, toTransaction(creator, e))
			}
			rec := s.reconciler.Reconcile(ctx, creator.ID, txs)
			if !rec.Success {
				return fmt.Errorf("reconcile failed: %v", rec.Errors)
			}
			result.Upserted += rec.Count
			result.Revenue = rec.Revenue
			return nil
		})
		if fetched != nil {
			result.Pages = fetched.Pages
			result.Records = fetched.Records
			result.Truncated = fetched.Truncated
		}
		return err
	})
	if err != nil {
		return result, err
	}

	if result.Truncated {
		s.logger.Warn("Transaction sync truncated, sync time not advanced", "creator_id", creatorID, "pages", result.Pages)
		return result, nil
	}
	if result.Pages == 0 || result.Upserted == 0 {
		// Nothing new upstream; keep revenue derived anyway.
		revenue, err := s.store.RecomputeRevenue(ctx, creatorID)
		if err != nil {
			return result, err
		}
		result.Revenue = revenue
	}
	if err := s.store.MarkTransactionsSynced(ctx, creatorID, started); err != nil {
		return result, err
	}

	s.logger.Info("Transactions synced", "creator_id", creatorID,
		"pages", result.Pages, "records", result.Records,
		"gross", result.Totals.GrossDollars().StringFixed(2), "revenue", Dollars(result.Revenue).StringFixed(2))
	return result, nil
}

// toTransaction maps an earning of creator's feed. Earnings reported for a
// different creator stay orphaned for the repair job.
func toTransaction(creator *models.Creator, e fanvue.Earning) models.Transaction {
	tx := models.Transaction{
		UpstreamID:         e.UUID,
		AgencyID:           creator.AgencyID,
		CounterpartyHandle: creator.Handle,
		Amount:             e.Gross,
		Currency:           e.Currency,
		Category:           e.Source,
		OccurredAt:         e.Date.UTC(),
	}
	if e.User != nil {
		tx.FanUUID = e.User.UUID
	}
	owner := creator.ID
	tx.ModelID = &owner
	if e.Creator != nil && e.Creator.UUID != "" && e.Creator.UUID != creator.FanvueUUID {
		tx.ModelID = nil
		tx.CounterpartyHandle = e.Creator.Handle
	}
	return tx
}
