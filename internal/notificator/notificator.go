package notificator

import (
	"context"
	"runtime/debug"

	"github.com/onyxos/onyxsync/pkg/logger"
)

// Alerter delivers operational alerts. Delivery is best effort: failures are
// logged and never returned to the caller.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// Notificator fans an alert out to every allow-listed Telegram chat.
type Notificator struct {
	logger *logger.Logger

	TelegramNotificator *TelegramNotificator
	chatIDs             []string
}

// NewNotificator returns a notificator that only logs alerts when telegram
// is nil or no chat is allow-listed.
func NewNotificator(logger *logger.Logger, telNotif *TelegramNotificator, chatIDs []string) *Notificator {
	return &Notificator{logger: logger, TelegramNotificator: telNotif, chatIDs: chatIDs}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) Alert(ctx context.Context, message string) {
	if n.TelegramNotificator == nil || len(n.chatIDs) == 0 {
		n.logger.Warn("Alert not delivered, no Telegram chat configured", "message", message)
		return
	}
	for _, chatID := range n.chatIDs {
		chatID := chatID
		n.safeCall(func() { n.TelegramNotificator.SendNotification(ctx, chatID, message) }, "telegramNotification")
	}
}

// Noop drops every alert.
type Noop struct{}

func (Noop) Alert(context.Context, string) {}
