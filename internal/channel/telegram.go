package channel

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// pollTimeout is the long-poll duration requested from getUpdates, in seconds.
const pollTimeout = 60

// Telegram sends and receives Telegram bot messages. Chat IDs are the external user IDs.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	poller *tgbotapi.BotAPI
	logger *logger.Logger
}

// NewTelegram authenticates the bot token. Each Bot API call is bounded by timeout;
// long polls get pollTimeout on top of it.
func NewTelegram(token string, timeout time.Duration, log *logger.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, timeout, log)
}

// NewTelegramWithEndpoint authenticates against a custom Bot API endpoint.
// The endpoint is a format string taking the token and the method name.
func NewTelegramWithEndpoint(token, endpoint string, timeout time.Duration, log *logger.Logger) (*Telegram, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	poller := *bot
	poller.Client = &http.Client{Timeout: pollTimeout*time.Second + timeout}
	return &Telegram{bot: bot, poller: &poller, logger: log}, nil
}

// Send sends text to the chat identified by recipient.
func (t *Telegram) Send(ctx context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", recipient)
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// Poll long-polls for updates and relays text messages until ctx is done.
func (t *Telegram) Poll(ctx context.Context, r Router, d Deliverer) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := t.poller.GetUpdatesChan(u)
	defer t.poller.StopReceivingUpdates()

	t.logger.Info("telegram polling started", zap.String("bot", t.bot.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			if _, err := Relay(ctx, r, d, t.logger, model.PlatformTelegram, chatID, update.Message.Text); err != nil {
				t.logger.Error("failed to relay telegram message",
					zap.String("chat_id", chatID),
					zap.Error(err),
				)
			}
		}
	}
}
