// Package channel delivers outbound messages to the end user's platform and
// relays inbound platform messages into the router.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/logger"
	"github.com/capitalize-ai/support-router/pkg/metrics"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

var (
	// ErrUnsupported is returned for platforms without a registered sender.
	ErrUnsupported = errors.New("channel: unsupported platform")
	// ErrNoRecipient is returned when the conversation has no addressable user.
	ErrNoRecipient = errors.New("channel: conversation has no recipient")
)

// Sender sends text to one recipient on a single platform.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, recipient, text string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, recipient, text string) error {
	return f(ctx, recipient, text)
}

// Dispatcher routes deliveries to the sender registered for a platform.
type Dispatcher struct {
	senders map[model.Platform]Sender
	timeout time.Duration
	logger  *logger.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(timeout time.Duration, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		senders: make(map[model.Platform]Sender),
		timeout: timeout,
		logger:  log,
	}
}

// Register installs the sender for platform.
func (d *Dispatcher) Register(platform model.Platform, s Sender) {
	d.senders[platform] = s
}

// Supports reports whether a sender is registered for platform.
func (d *Dispatcher) Supports(platform model.Platform) bool {
	_, ok := d.senders[platform]
	return ok
}

// Deliver sends text to the user of conv. Web conversations are addressed by
// session ID, every other platform by the external user ID.
func (d *Dispatcher) Deliver(ctx context.Context, conv *model.Conversation, text string) error {
	sender, ok := d.senders[conv.Platform]
	if !ok {
		metrics.RecordDelivery(string(conv.Platform), false)
		return fmt.Errorf("%w: %s", ErrUnsupported, conv.Platform)
	}

	recipient := conv.UserID
	if conv.Platform == model.PlatformWeb {
		recipient = conv.SessionID
	}
	if recipient == "" {
		metrics.RecordDelivery(string(conv.Platform), false)
		return ErrNoRecipient
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sender.Send(ctx, recipient, text)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	metrics.RecordDelivery(string(conv.Platform), err == nil)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", conv.Platform, err)
	}
	d.logger.Debug("message delivered",
		zap.String("session_id", conv.SessionID),
		zap.String("platform", string(conv.Platform)),
	)
	return nil
}
