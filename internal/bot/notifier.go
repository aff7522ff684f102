package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hydra-signals/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type SubscriberSource interface {
	ListSubscriberChats(ctx context.Context, ticker string) ([]int64, error)
}

// SignalNotifier fans signal events out to subscribed Telegram chats, pacing
// consecutive sends to stay under the Bot API rate limits.
type SignalNotifier struct {
	sender    messageSender
	subs      SubscriberSource
	sendDelay time.Duration
}

func NewSignalNotifier(sender messageSender, subs SubscriberSource, sendDelay time.Duration) *SignalNotifier {
	return &SignalNotifier{sender: sender, subs: subs, sendDelay: sendDelay}
}

func (n *SignalNotifier) NotifyNewSignals(ctx context.Context, payload domain.NotificationPayload) error {
	if n == nil || n.sender == nil {
		return nil
	}
	ticker := strings.TrimSuffix(payload.Pair, "USDT")
	return n.broadcast(ctx, ticker, formatNewSignals(payload))
}

func (n *SignalNotifier) NotifyTransition(ctx context.Context, s domain.Signal) error {
	if n == nil || n.sender == nil {
		return nil
	}
	return n.broadcast(ctx, s.Ticker, formatTransition(s))
}

func (n *SignalNotifier) broadcast(ctx context.Context, ticker, msg string) error {
	chats, err := n.subs.ListSubscriberChats(ctx, ticker)
	if err != nil {
		return fmt.Errorf("list subscribers for %s: %w", ticker, err)
	}

	var failures []string
	for i, chatID := range chats {
		if i > 0 && n.sendDelay > 0 {
			select {
			case <-time.After(n.sendDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := n.sender.Send(&tele.Chat{ID: chatID}, msg, tele.ModeHTML); err != nil {
			failures = append(failures, fmt.Sprintf("chat %d: %v", chatID, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed sending %d notifications: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}
