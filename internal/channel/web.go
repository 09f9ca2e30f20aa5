package channel

import (
	"context"
	"time"

	"github.com/capitalize-ai/support-router/internal/model"
)

// ReplyPublisher publishes replies for web clients, see nats.StreamManager.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, msg *model.OutboundMessage) (uint64, error)
}

// Web delivers to browser sessions by publishing on the session's reply subject.
type Web struct {
	publisher ReplyPublisher
	sender    model.Sender
}

// NewWeb creates a web sender that labels messages as coming from sender.
func NewWeb(p ReplyPublisher, sender model.Sender) *Web {
	return &Web{publisher: p, sender: sender}
}

// Send publishes text for the session identified by recipient.
func (w *Web) Send(ctx context.Context, recipient, text string) error {
	_, err := w.publisher.PublishReply(ctx, &model.OutboundMessage{
		SessionID: recipient,
		Text:      text,
		Sender:    w.sender,
		CreatedAt: time.Now(),
	})
	return err
}
