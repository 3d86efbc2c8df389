package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/onyxos/onyxsync/internal/cache"
	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	stateKeyPrefix = "oauth:state:"
	stateTTL       = 10 * time.Minute
)

// ErrInvalidState is returned for unknown, reused or expired connect states.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// Authorization is the interactive half of the OAuth flow.
type Authorization interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
}

// Identity resolves the account that owns an access token.
type Identity interface {
	GetCurrentUser(ctx context.Context, token string, cached bool) (*fanvue.User, error)
}

type pendingConnect struct {
	AgencyID string `json:"agency_id"`
	Verifier string `json:"verifier"`
}

// Connector runs the interactive OAuth connect that links a Fanvue account to
// an agency. Pending states live in the cache and are single use.
type Connector struct {
	logger   *logger.Logger
	store    models.CreatorRepository
	auth     Authorization
	identity Identity
	states   cache.Cache
	buffer   time.Duration
	now      func() time.Time
}

func NewConnector(store models.CreatorRepository, auth Authorization, identity Identity, states cache.Cache, buffer time.Duration, logger *logger.Logger) *Connector {
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	return &Connector{
		logger:   logger,
		store:    store,
		auth:     auth,
		identity: identity,
		states:   states,
		buffer:   buffer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Begin stores a new state with its PKCE verifier and returns the consent URL.
func (c *Connector) Begin(ctx context.Context, agencyID string) (string, error) {
	state := uuid.NewString()
	pending := pendingConnect{AgencyID: agencyID, Verifier: fanvue.GenerateVerifier()}
	raw, err := json.Marshal(pending)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}
	if err := c.states.Set(ctx, stateKeyPrefix+state, raw, stateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return c.auth.AuthCodeURL(state, pending.Verifier), nil
}

// Complete redeems code for tokens and stores the connected creator.
func (c *Connector) Complete(ctx context.Context, state, code string) (*models.Creator, error) {
	if state == "" || code == "" {
		return nil, ErrInvalidState
	}

	key := stateKeyPrefix + state
	raw, err := c.states.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth state: %w", err)
	}
	if err := c.states.Invalidate(ctx, key); err != nil {
		c.logger.Warn("Failed to invalidate oauth state", "error", err)
	}

	var pending pendingConnect
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, ErrInvalidState
	}

	tok, err := c.auth.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	user, err := c.identity.GetCurrentUser(ctx, tok.AccessToken, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load connected account: %w", err)
	}

	expiry := expiresAt(tok, c.buffer, c.now())
	creator, err := c.store.UpsertConnectedCreator(ctx, &models.Creator{
		AgencyID:         pending.AgencyID,
		FanvueUUID:       user.UUID,
		Handle:           user.Handle,
		DisplayName:      user.DisplayName,
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		TokenExpiresAt:   &expiry,
		SubscribersCount: user.FanCounts.SubscribersCount,
		FollowersCount:   user.FanCounts.FollowersCount,
		PostsCount:       user.ContentCounts.PostCount,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Fanvue account connected", "creator_id", creator.ID, "agency_id", creator.AgencyID, "handle", creator.Handle)
	return creator, nil
}
