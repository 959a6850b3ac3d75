// Package notify renders post outcomes to the owning user. It consumes
// the core's state labels and errors but holds no delivery logic.
package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"postbot/internal/store"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Notifier matches delivery.Notifier.
type Notifier interface {
	Notify(ctx context.Context, p *store.Post, status store.Status, err error)
}

// Nop discards all notifications.
func Nop() Notifier { return nopNotifier{} }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *store.Post, store.Status, error) {}

// Telegram delivers outcome messages to the user's private chat through
// the primary transport, rate limited so a burst of failures cannot
// flood anyone.
type Telegram struct {
	client  transport.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(client transport.Client, ratePerSec int, log logx.Logger) *Telegram {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

func (n *Telegram) Notify(ctx context.Context, p *store.Post, status store.Status, cause error) {
	text := render(p, status, cause)
	if text == "" {
		return
	}
	if !n.limiter.Allow() {
		n.log.Debug("notification dropped by rate limit", logx.Int64("user_id", p.UserID))
		return
	}
	_, err := n.client.Send(ctx, transport.Target{ChatID: p.UserID}, transport.Content{
		Type:    "text",
		Payload: text,
	})
	if err != nil {
		// Best effort only.
		n.log.Debug("notification send failed", logx.Int64("user_id", p.UserID), logx.Err(err))
	}
}

func render(p *store.Post, status store.Status, cause error) string {
	switch status {
	case store.StatusSent:
		return fmt.Sprintf("Post #%d delivered to channel %d.", p.Index, p.ChannelID)
	case store.StatusFailed:
		if cause != nil {
			return fmt.Sprintf("Post #%d to channel %d failed: %v", p.Index, p.ChannelID, cause)
		}
		return fmt.Sprintf("Post #%d to channel %d failed.", p.Index, p.ChannelID)
	case store.StatusSelfDeleted:
		return fmt.Sprintf("Post #%d in channel %d self-deleted.", p.Index, p.ChannelID)
	}
	return ""
}
