package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

// AuthorizedFunc performs upstream calls for creator with an access token.
type AuthorizedFunc func(ctx context.Context, creator *models.Creator, accessToken string) error

// Authorizer hands out valid access tokens. It refreshes proactively when the
// stored token has expired and reactively, once, when the upstream answers 401.
type Authorizer struct {
	logger    *logger.Logger
	store     models.TokenStore
	refresher *Refresher
	now       func() time.Time
}

func NewAuthorizer(store models.TokenStore, refresher *Refresher, logger *logger.Logger) *Authorizer {
	return &Authorizer{
		logger:    logger,
		store:     store,
		refresher: refresher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithToken runs fn with a valid access token for the creator.
func (a *Authorizer) WithToken(ctx context.Context, creatorID string, fn AuthorizedFunc) error {
	creator, err := a.store.GetCreator(ctx, creatorID)
	if err != nil {
		return err
	}
	if creator.ConnectionStatus != models.ConnectionActive {
		return &RefreshError{CreatorID: creatorID, Terminal: true, Err: ErrConnectionExpired}
	}

	pair := creator.Tokens()
	if pair.Expired(a.now()) {
		refreshed, err := a.refresher.Refresh(ctx, creatorID)
		if err != nil {
			return err
		}
		pair = *refreshed
	}

	err = fn(ctx, creator, pair.AccessToken)
	if !errors.Is(err, fanvue.ErrUnauthorized) {
		return err
	}

	a.logger.Info("Access token rejected, refreshing", "creator_id", creatorID)
	refreshed, rErr := a.refresher.Refresh(ctx, creatorID)
	if rErr != nil {
		return rErr
	}
	return fn(ctx, creator, refreshed.AccessToken)
}
