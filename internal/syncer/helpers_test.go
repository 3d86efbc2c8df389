package syncer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/repository"
	"github.com/onyxos/onyxsync/internal/retry"
	"github.com/onyxos/onyxsync/internal/testutil"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

type staticSource struct{}

func (staticSource) Refresh(context.Context, string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "refreshed", Expiry: time.Now().Add(time.Hour)}, nil
}

type testEnv struct {
	repo      *repository.PostgresDB
	client    *fanvue.Client
	auth      *tokens.Authorizer
	scheduler *Scheduler
}

func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()
	log := logger.NewNop()
	repo := testutil.NewTestRepository(t)

	if handler == nil {
		handler = http.NotFoundHandler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := fanvue.NewClient(fanvue.Options{
		BaseURL: srv.URL,
		Backoff: retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, log)
	refresher := tokens.NewRefresher(repo, staticSource{}, nil, tokens.Options{}, log)

	return &testEnv{
		repo:      repo,
		client:    client,
		auth:      tokens.NewAuthorizer(repo, refresher, log),
		scheduler: NewScheduler(repo, SchedulerOptions{}, log),
	}
}

func (e *testEnv) seedCreator(t *testing.T, agencyID, handle string, lastSync *time.Time) *models.Creator {
	t.Helper()
	expires := time.Now().UTC().Add(time.Hour)
	creator := &models.Creator{
		AgencyID:            agencyID,
		FanvueUUID:          "fv-" + handle,
		Handle:              handle,
		AccessToken:         "access-" + handle,
		RefreshToken:        "refresh-" + handle,
		TokenExpiresAt:      &expires,
		LastTransactionSync: lastSync,
	}
	require.NoError(t, e.repo.Conn.Create(creator).Error)
	return creator
}

func ptr[T any](v T) *T {
	return &v
}

func tx(upstreamID, agencyID string, modelID *string, amount int64) models.Transaction {
	return models.Transaction{
		UpstreamID: upstreamID,
		AgencyID:   agencyID,
		ModelID:    modelID,
		Amount:     amount,
		Currency:   "USD",
		Category:   "tip",
		OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func txs(prefix, agencyID string, modelID *string, n int, amount func(i int) int64) []models.Transaction {
	out := make([]models.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tx(fmt.Sprintf("%s-%d", prefix, i), agencyID, modelID, amount(i)))
	}
	return out
}
