package queue

import (
	"context"

	"github.com/onyxos/onyxsync/internal/fanvue"
	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/internal/tokens"
)

// FanvueSender posts queued messages as the owning creator.
type FanvueSender struct {
	client *fanvue.Client
	auth   *tokens.Authorizer
}

func NewFanvueSender(client *fanvue.Client, auth *tokens.Authorizer) *FanvueSender {
	return &FanvueSender{client: client, auth: auth}
}

func (s *FanvueSender) Send(ctx context.Context, item *models.QueueItem) error {
	msg := fanvue.SendMessageRequest{Text: item.Text, Price: item.PriceCents}
	if item.MediaUUID != nil && *item.MediaUUID != "" {
		msg.MediaUUIDs = []string{*item.MediaUUID}
	}
	return s.auth.WithToken(ctx, item.CreatorID, func(ctx context.Context, _ *models.Creator, token string) error {
		return s.client.SendMessage(ctx, token, item.FanUUID, msg)
	})
}
