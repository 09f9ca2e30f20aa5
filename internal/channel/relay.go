package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// Router is the part of the conversation API an inbound channel needs.
type Router interface {
	SessionForExternalUser(ctx context.Context, platform model.Platform, userID string) (*model.Conversation, error)
	HandleMessage(ctx context.Context, text, sessionID, userID string) (*model.RouterResult, error)
}

// Deliverer sends a message to the user of a conversation.
type Deliverer interface {
	Deliver(ctx context.Context, conv *model.Conversation, text string) error
}

// Relay routes one inbound platform message and sends the answer back unless
// the router chose not to reply. Delivery failures are logged, not returned.
func Relay(ctx context.Context, r Router, d Deliverer, log *logger.Logger, platform model.Platform, userID, text string) (*model.RouterResult, error) {
	conv, err := r.SessionForExternalUser(ctx, platform, userID)
	if err != nil {
		return nil, err
	}

	res, err := r.HandleMessage(ctx, text, conv.SessionID, userID)
	if err != nil {
		return nil, err
	}
	if res.NoReply || res.Text == nil || *res.Text == "" {
		return res, nil
	}

	if err := d.Deliver(ctx, conv, *res.Text); err != nil {
		log.Warn("failed to deliver reply",
			zap.String("session_id", conv.SessionID),
			zap.String("platform", string(platform)),
			zap.Error(err),
		)
	}
	return res, nil
}
