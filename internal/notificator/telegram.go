package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/onyxos/onyxsync/pkg/logger"
)

// TelegramNotificator sends plain text messages through the Bot API. It only
// sends; updates are never polled.
type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
}

func NewTelegramNotificator(logger *logger.Logger, token string, opts ...bot.Option) (*TelegramNotificator, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotificator{logger: logger, bot: b}, nil
}

func (t *TelegramNotificator) SendNotification(ctx context.Context, chatID, message string) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		t.logger.Error("Failed to send notification", "chat_id", chatID, "error", err)
	}
}
