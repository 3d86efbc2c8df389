// Package tokens keeps creator OAuth tokens usable: it refreshes them before
// they expire, after the upstream rejects them and in scheduled batches.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/notificator"
	"github.com/onyxos/onyxsync/pkg/logger"
)

const (
	DefaultExpiryBuffer = 5 * time.Minute
	DefaultParallelism  = 5
	DefaultBatchLimit   = 200

	// defaultTokenTTL applies when the upstream omits expires_in.
	defaultTokenTTL = time.Hour
)

var (
	// ErrMissingRefreshToken means the creator never completed an OAuth
	// connect, or the refresh token was cleared.
	ErrMissingRefreshToken = errors.New("refresh token is empty")
	// ErrConnectionExpired is returned for creators that must reconnect.
	ErrConnectionExpired = errors.New("fanvue connection expired")
)

// RefreshError is the outcome of a failed refresh. Terminal errors require
// the user to reconnect; others may succeed on the next cycle.
type RefreshError struct {
	CreatorID string
	Terminal  bool
	Err       error
}

func (e *RefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("token refresh for creator %s failed (%s): %v", e.CreatorID, kind, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err requires an interactive reconnect.
func IsTerminal(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Terminal
}

// TokenSource exchanges refresh tokens with the authorization server.
type TokenSource interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type Options struct {
	// ExpiryBuffer is subtracted from the upstream expiry to absorb clock skew.
	ExpiryBuffer time.Duration
	// Parallelism bounds concurrent refreshes in RefreshExpiring.
	Parallelism int
	BatchLimit  int
}

// Refresher exchanges stored refresh tokens and persists the result. Calls for
// the same creator are collapsed so only one exchange is in flight at a time.
type Refresher struct {
	logger  *logger.Logger
	store   models.TokenStore
	source  TokenSource
	alerter notificator.Alerter

	buffer      time.Duration
	parallelism int
	batchLimit  int

	group singleflight.Group
	now   func() time.Time
}

func NewRefresher(store models.TokenStore, source TokenSource, alerter notificator.Alerter, opts Options, logger *logger.Logger) *Refresher {
	r := &Refresher{
		logger:      logger,
		store:       store,
		source:      source,
		alerter:     alerter,
		buffer:      opts.ExpiryBuffer,
		parallelism: opts.Parallelism,
		batchLimit:  opts.BatchLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if r.buffer <= 0 {
		r.buffer = DefaultExpiryBuffer
	}
	if r.parallelism <= 0 {
		r.parallelism = DefaultParallelism
	}
	if r.batchLimit <= 0 {
		r.batchLimit = DefaultBatchLimit
	}
	if r.alerter == nil {
		r.alerter = notificator.Noop{}
	}
	return r
}

// Refresh exchanges the creator's refresh token and stores the new pair. On
// failure the stored tokens are left untouched.
func (r *Refresher) Refresh(ctx context.Context, creatorID string) (*models.TokenPair, error) {
	v, err, _ := r.group.Do(creatorID, func() (interface{}, error) {
		return r.refresh(ctx, creatorID)
	})
	if err != nil {
		return nil, err
	}
	pair := v.(models.TokenPair)
	return &pair, nil
}

func (r *Refresher) refresh(ctx context.Context, creatorID string) (models.TokenPair, error) {
	creator, err := r.store.GetCreator(ctx, creatorID)
	if err != nil {
		return models.TokenPair{}, err
	}

	if creator.RefreshToken == "" {
		r.expire(ctx, creatorID)
		return models.TokenPair{}, &RefreshError{CreatorID: creatorID, Terminal: true, Err: ErrMissingRefreshToken}
	}

	tok, err := r.source.Refresh(ctx, creator.RefreshToken)
	if err != nil {
		if fanvue.IsInvalidGrant(err) {
			r.logger.Warn("Refresh token rejected, reconnect required", "creator_id", creatorID, "error", err)
			r.expire(ctx, creatorID)
			return models.TokenPair{}, &RefreshError{CreatorID: creatorID, Terminal: true, Err: err}
		}
		r.logger.Warn("Token refresh failed, will retry next cycle", "creator_id", creatorID, "error", err)
		return models.TokenPair{}, &RefreshError{CreatorID: creatorID, Err: err}
	}

	pair := models.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    r.expiresAt(tok),
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = creator.RefreshToken
	}
	if err := r.store.SaveTokens(ctx, creatorID, pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	r.logger.Debug("Token refreshed", "creator_id", creatorID, "expires_at", pair.ExpiresAt)
	return pair, nil
}

func (r *Refresher) expiresAt(tok *oauth2.Token) time.Time {
	return expiresAt(tok, r.buffer, r.now())
}

// expiresAt is the stored expiry of tok: the upstream expiry minus buffer.
func expiresAt(tok *oauth2.Token, buffer time.Duration, now time.Time) time.Time {
	if tok.Expiry.IsZero() {
		return now.Add(defaultTokenTTL - buffer)
	}
	return tok.Expiry.UTC().Add(-buffer)
}

func (r *Refresher) expire(ctx context.Context, creatorID string) {
	if err := r.store.MarkConnectionExpired(ctx, creatorID, models.ReconnectMessage); err != nil {
		r.logger.Error("Failed to mark connection expired", "creator_id", creatorID, "error", err)
	}
}

// RefreshExpiring refreshes every active creator whose token expires within
// window, a bounded number at a time. Creators that need to reconnect are
// reported in a single alert.
func (r *Refresher) RefreshExpiring(ctx context.Context, window time.Duration) (*models.BatchSummary, error) {
	summary := models.NewBatchSummary("refresh-tokens")

	creators, err := r.store.ListCreatorsWithExpiringTokens(ctx, r.now().Add(window), r.batchLimit)
	if err != nil {
		return summary, err
	}

	var (
		mu       sync.Mutex
		terminal []string
	)
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for _, creator := range creators {
		creator := creator
		g.Go(func() error {
			_, err := r.Refresh(ctx, creator.ID)
			summary.Record(creator.ID, err)
			if IsTerminal(err) {
				mu.Lock()
				terminal = append(terminal, describe(creator))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(terminal) > 0 {
		sort.Strings(terminal)
		r.alerter.Alert(ctx, fmt.Sprintf("Fanvue reconnect required for %d creator(s): %s", len(terminal), strings.Join(terminal, ", ")))
	}

	r.logger.Info("Token refresh batch finished",
		"processed", summary.Processed, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

func describe(c *models.Creator) string {
	if c.Handle != "" {
		return "@" + c.Handle
	}
	return c.ID
}
