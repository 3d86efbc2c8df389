package tokens

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/onyxos/onyxsync/internal/cache"
	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/testutil"
	"github.com/onyxos/onyxsync/pkg/logger"
)

type fakeAuthorization struct {
	verifier string
	token    *oauth2.Token
}

func (f *fakeAuthorization) AuthCodeURL(state, verifier string) string {
	return "https://auth.example/consent?state=" + url.QueryEscape(state)
}

func (f *fakeAuthorization) Exchange(_ context.Context, code, verifier string) (*oauth2.Token, error) {
	f.verifier = verifier
	return f.token, nil
}

type fakeIdentity struct {
	user *fanvue.User
}

func (f fakeIdentity) GetCurrentUser(context.Context, string, bool) (*fanvue.User, error) {
	return f.user, nil
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestConnectStoresCreator(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	auth := &fakeAuthorization{token: &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}}
	user := &fanvue.User{UUID: "fv-ava", Handle: "ava", DisplayName: "Ava"}
	user.FanCounts.FollowersCount = 12
	c := NewConnector(repo, auth, fakeIdentity{user: user}, cache.NewLRU(16, time.Minute), time.Minute, logger.NewNop())

	ctx := context.Background()
	authURL, err := c.Begin(ctx, "agency-1")
	require.NoError(t, err)
	state := stateFrom(t, authURL)
	require.NotEmpty(t, state)

	creator, err := c.Complete(ctx, state, "code-1")
	require.NoError(t, err)
	assert.NotEmpty(t, auth.verifier)
	assert.Equal(t, "agency-1", creator.AgencyID)
	assert.Equal(t, "ava", creator.Handle)
	assert.Equal(t, "rt", creator.RefreshToken)
	assert.Equal(t, int64(12), creator.FollowersCount)
	require.NotNil(t, creator.TokenExpiresAt)
	assert.WithinDuration(t, expiry.Add(-time.Minute), *creator.TokenExpiresAt, time.Second)

	// states are single use
	_, err = c.Complete(ctx, state, "code-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConnectReactivatesExpiredCreator(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	old := seedCreator(t, repo, "bea", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, repo.MarkConnectionExpired(ctx, old.ID, "expired"))

	auth := &fakeAuthorization{token: &oauth2.Token{AccessToken: "at", RefreshToken: "rt-new"}}
	c := NewConnector(repo, auth, fakeIdentity{user: &fanvue.User{UUID: old.FanvueUUID, Handle: "bea"}}, cache.NewLRU(16, time.Minute), 0, logger.NewNop())

	authURL, err := c.Begin(ctx, "agency-1")
	require.NoError(t, err)
	creator, err := c.Complete(ctx, stateFrom(t, authURL), "code")
	require.NoError(t, err)
	assert.Equal(t, old.ID, creator.ID)
	assert.Equal(t, "active", string(creator.ConnectionStatus))
	assert.Empty(t, creator.ConnectionError)
	assert.Equal(t, "rt-new", creator.RefreshToken)
}

func TestConnectRejectsUnknownState(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	c := NewConnector(repo, &fakeAuthorization{}, fakeIdentity{}, cache.NewLRU(16, time.Minute), 0, logger.NewNop())

	_, err := c.Complete(context.Background(), "nope", "code")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.Complete(context.Background(), "", "code")
	assert.ErrorIs(t, err, ErrInvalidState)
}
