package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTypeDataShape(t *testing.T) {
	event, err := Classify([]byte(`{"id":"evt-1","type":"tip.received","data":{"uuid":"tx-1","creator":{"uuid":"fv-ava"},"user":{"uuid":"fan-1"},"amount":500,"currency":"usd","createdAt":"2026-05-01T10:00:00Z"}}`))
	require.NoError(t, err)

	payment, ok := event.(Payment)
	require.True(t, ok)
	assert.Equal(t, KindTip, payment.Kind())
	assert.Equal(t, "evt-1", payment.ID())
	assert.Equal(t, "fv-ava", payment.CreatorUUID())
	assert.Equal(t, "fan-1", payment.FanUUID)
	assert.Equal(t, "tx-1", payment.TransactionUUID)
	assert.Equal(t, int64(500), payment.Amount)
	assert.Equal(t, "USD", payment.Currency)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), payment.OccurredAt)
}

func TestClassifyEventPayloadShape(t *testing.T) {
	event, err := Classify([]byte(`{"event":"new_follower","payload":{"creatorUuid":"fv-ava","fanUuid":"fan-2"}}`))
	require.NoError(t, err)

	follower, ok := event.(NewFollower)
	require.True(t, ok)
	assert.Equal(t, "fv-ava", follower.CreatorUUID())
	assert.Equal(t, "fan-2", follower.FanUUID)
	assert.Empty(t, follower.ID())
}

func TestClassifyLegacyKeyedShape(t *testing.T) {
	event, err := Classify([]byte(`{"message":{"uuid":"msg-1","text":"hi","sender":{"uuid":"fan-3"},"recipient":{"uuid":"fv-ava"}}}`))
	require.NoError(t, err)

	msg, ok := event.(MessageReceived)
	require.True(t, ok)
	assert.Equal(t, "fv-ava", msg.CreatorUUID())
	assert.Equal(t, "fan-3", msg.FanUUID)
	assert.Equal(t, "msg-1", msg.MessageUUID)
	assert.Equal(t, "hi", msg.Text)

	event, err = Classify([]byte(`{"purchase":{"id":"p-9","creatorUuid":"fv-ava","price":1299}}`))
	require.NoError(t, err)
	payment, ok := event.(Payment)
	require.True(t, ok)
	assert.Equal(t, KindPurchase, payment.Kind())
	assert.Equal(t, int64(1299), payment.Amount)
}

func TestClassifyUnknownAndMalformed(t *testing.T) {
	event, err := Classify([]byte(`{"type":"post.liked","data":{}}`))
	require.NoError(t, err)
	unknown, ok := event.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "post.liked", unknown.Type)

	event, err = Classify([]byte(`{"something":"else"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, event.Kind())

	for _, body := range []string{``, `[]`, `{"type":`, `{"type":"tip","data":{"amount":1.5}}`} {
		_, err := Classify([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedPayload, body)
	}
}
