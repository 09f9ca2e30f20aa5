package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/policy"
)

// ListNeedsReview returns every message flagged for labeling, oldest first.
func (s *Service) ListNeedsReview(ctx context.Context) ([]model.ReviewItem, error) {
	items, err := s.store.ListNeedsReview(ctx)
	if err != nil {
		return nil, storeError("list needs review", err)
	}
	return items, nil
}

// LabelIntent applies a human intent correction to a message and clears its review flag.
func (s *Service) LabelIntent(ctx context.Context, messageID, intent string) (*model.Message, error) {
	if messageID == "" {
		return nil, newError(KindValidation, "message id is required", nil)
	}
	if strings.TrimSpace(intent) == "" {
		return nil, newError(KindValidation, "intent is required", nil)
	}
	label := model.ParseIntent(intent)

	var labeled model.Message
	_, err := s.store.UpdateMessage(ctx, messageID, func(c *model.Conversation, idx int) error {
		policy.Relabel(&c.Messages[idx], label)
		labeled = c.Messages[idx].Clone()
		return nil
	})
	if err != nil {
		return nil, storeError("label intent", err)
	}

	s.logger.Info("message relabeled",
		zap.String("message_id", messageID),
		zap.String("intent", string(label)),
	)
	return &labeled, nil
}

// TrainingSamples returns labeled user messages that are not awaiting review.
func (s *Service) TrainingSamples(ctx context.Context) ([]model.TrainingSample, error) {
	samples := []model.TrainingSample{}
	err := s.store.Walk(ctx, func(c *model.Conversation) error {
		for _, m := range c.Messages {
			if m.Sender != model.SenderUser || !m.HasIntent() || m.Metadata.NeedReview {
				continue
			}
			if *m.Intent == model.IntentUnknown {
				continue
			}
			samples = append(samples, model.TrainingSample{Text: m.Text, Intent: *m.Intent})
		}
		return nil
	})
	if err != nil {
		return nil, storeError("export training samples", err)
	}
	return samples, nil
}
