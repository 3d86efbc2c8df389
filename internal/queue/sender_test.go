package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/testutil"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/pkg/logger"
)

type noRefresh struct{}

func (noRefresh) Refresh(context.Context, string) (*oauth2.Token, error) {
	return nil, &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, ErrorCode: "invalid_grant"}
}

func TestFanvueSenderPostsChatMessage(t *testing.T) {
	var got fanvue.SendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chats/fan-1/message", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	repo := testutil.NewTestRepository(t)
	expires := time.Now().UTC().Add(time.Hour)
	creator := &models.Creator{AgencyID: "a", FanvueUUID: "fv-1", AccessToken: "access", RefreshToken: "r", TokenExpiresAt: &expires}
	require.NoError(t, repo.Conn.Create(creator).Error)

	log := logger.NewNop()
	client := fanvue.NewClient(fanvue.Options{BaseURL: srv.URL}, log)
	auth := tokens.NewAuthorizer(repo, tokens.NewRefresher(repo, noRefresh{}, nil, tokens.Options{}, log), log)

	price := int64(999)
	media := "media-1"
	err := NewFanvueSender(client, auth).Send(context.Background(), &models.QueueItem{
		CreatorID:  creator.ID,
		FanUUID:    "fan-1",
		Text:       "hey there",
		MediaUUID:  &media,
		PriceCents: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, "hey there", got.Text)
	assert.Equal(t, []string{"media-1"}, got.MediaUUIDs)
	require.NotNil(t, got.Price)
	assert.Equal(t, int64(999), *got.Price)
}
