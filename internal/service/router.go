package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/classifier"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/policy"
	"github.com/capitalize-ai/support-router/pkg/metrics"
	"github.com/capitalize-ai/support-router/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/capitalize-ai/support-router/internal/service")

// HandleMessage routes one inbound end-user message. The user message is
// committed before the classifier is consulted, so it survives any later failure.
// Escalated conversations only ingest: no classifier call and no reply.
func (s *Service) HandleMessage(ctx context.Context, text, sessionID, userID string) (*model.RouterResult, error) {
	ctx, span := tracer.Start(ctx, "service.HandleMessage")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newError(KindValidation, "message is required", nil)
	}
	if sessionID == "" {
		return nil, newError(KindValidation, "session id is required", nil)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	log := s.logger.WithSession(sessionID)

	var userMsg model.Message
	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		if c.UserID == "" && userID != "" {
			c.UserID = userID
		}
		userMsg = s.appendMessage(c, newMessage(model.SenderUser, text))
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "append user message")
		return nil, storeError("append user message", err)
	}
	s.recordAppended(conv, userMsg)

	if conv.Status == model.StatusEscalated {
		span.SetAttributes(attribute.Bool("no_reply", true))
		return &model.RouterResult{
			SessionID: sessionID,
			Status:    conv.Status,
			Escalated: true,
			NoReply:   true,
		}, nil
	}

	res := s.classifier.Classify(ctx, classifier.Request{
		Message:   text,
		SessionID: sessionID,
		UserID:    conv.UserID,
		Platform:  conv.Platform,
	})
	span.SetAttributes(
		attribute.String("intent", string(res.Intent)),
		attribute.Float64("confidence", res.Confidence),
		attribute.Bool("fallback", res.Fallback),
	)

	result, err := s.reply(ctx, conv, userMsg, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route message")
		log.Error("failed to route message", zap.Error(err))
		s.apologize(ctx, sessionID)
		return nil, err
	}
	return result, nil
}

// reply applies the routing decision for a classified message in one update.
func (s *Service) reply(ctx context.Context, conv *model.Conversation, userMsg model.Message, res classifier.Result) (*model.RouterResult, error) {
	rules := s.policy.Rules()
	c := policy.Classification{Text: res.Text, Intent: res.Intent, Confidence: res.Confidence}

	if conv.Status.Terminal() {
		out, err := s.commitReply(ctx, conv, userMsg, res, func(*model.Conversation) error { return nil })
		if err != nil {
			return nil, err
		}
		return out.RouterResult, nil
	}

	verdict := s.policy.Decide(conv, userMsg.Text, c)
	if verdict.Escalate {
		return s.escalate(ctx, conv, userMsg, res, verdict)
	}

	var transition model.Status
	var escReason string
	out, err := s.commitReply(ctx, conv, userMsg, res, func(cv *model.Conversation) error {
		switch s.policy.StatusCheck(c) {
		case policy.StatusEscalate:
			escReason = policy.ReasonUserRequested
			if c.Confidence < rules.LowConfidenceThreshold {
				escReason = policy.ReasonLowConfidence
			}
			changed, err := cv.Escalate(s.policy.DeterminePriority(c.Text), escReason, "", s.now())
			if changed {
				transition = model.StatusEscalated
			}
			return err
		case policy.StatusResolve:
			changed, err := cv.Resolve(s.now())
			if changed {
				transition = model.StatusResolved
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch transition {
	case model.StatusEscalated:
		out.Escalated = true
		metrics.RecordEscalation(escReason, string(out.priority))
		s.publish(ctx, out.conv, model.EventTypeEscalated, escReason)
	case model.StatusResolved:
		metrics.RecordTransition(string(model.StatusResolved))
		s.publish(ctx, out.conv, model.EventTypeResolved, "")
	}
	return out.RouterResult, nil
}

type committed struct {
	*model.RouterResult
	conv     *model.Conversation
	priority model.Priority
}

// commitReply annotates the user message with the classification, appends the
// bot reply and runs transition in the same update.
func (s *Service) commitReply(ctx context.Context, conv *model.Conversation, userMsg model.Message, res classifier.Result, transition func(*model.Conversation) error) (*committed, error) {
	var bot model.Message
	var flagged bool
	updated, err := s.store.Update(ctx, conv.SessionID, func(c *model.Conversation) error {
		flagged = s.annotate(c, userMsg.ID, res)
		msg := newMessage(model.SenderBot, res.Text)
		msg.Intent = intentRef(res.Intent)
		msg.Confidence = res.Confidence
		bot = s.appendMessage(c, msg)
		return transition(c)
	})
	if err != nil {
		return nil, storeError("persist reply", err)
	}
	s.recordFlag(flagged)
	s.recordAppended(updated, bot)

	text := res.Text
	return &committed{
		RouterResult: &model.RouterResult{
			Text:         &text,
			SessionID:    updated.SessionID,
			Intent:       res.Intent,
			Confidence:   res.Confidence,
			Status:       updated.Status,
			QuickReplies: res.QuickReplies,
			Attachments:  res.Attachments,
		},
		conv:     updated,
		priority: updated.Priority,
	}, nil
}

// escalate hands the conversation to staff and appends the hand-off notice.
func (s *Service) escalate(ctx context.Context, conv *model.Conversation, userMsg model.Message, res classifier.Result, verdict policy.Verdict) (*model.RouterResult, error) {
	agentID, err := s.agents.SelectAgent(ctx, conv)
	if err != nil {
		s.logger.Warn("agent selection failed",
			zap.String("session_id", conv.SessionID),
			zap.Error(err),
		)
		agentID = ""
	}

	notice := s.policy.Rules().HandoffNotice
	var handoff model.Message
	var flagged bool
	updated, err := s.store.Update(ctx, conv.SessionID, func(c *model.Conversation) error {
		flagged = s.annotate(c, userMsg.ID, res)
		if _, err := c.Escalate(verdict.Priority, verdict.Reason, agentID, s.now()); err != nil {
			return err
		}
		handoff = s.appendMessage(c, newMessage(model.SenderBot, notice))
		return nil
	})
	if err != nil {
		return nil, storeError("escalate conversation", err)
	}
	s.recordFlag(flagged)
	s.recordAppended(updated, handoff)
	metrics.RecordEscalation(verdict.Reason, string(verdict.Priority))
	s.publish(ctx, updated, model.EventTypeEscalated, verdict.Reason)

	s.logger.Info("conversation escalated",
		zap.String("session_id", conv.SessionID),
		zap.String("reason", verdict.Reason),
		zap.String("priority", string(verdict.Priority)),
		zap.String("agent_id", agentID),
	)

	return &model.RouterResult{
		Text:       &notice,
		SessionID:  updated.SessionID,
		Intent:     res.Intent,
		Confidence: res.Confidence,
		Status:     updated.Status,
		Escalated:  true,
	}, nil
}

// annotate records the classifier verdict on the triggering user message and
// re-runs the review rule on it. It reports whether the message is now flagged.
func (s *Service) annotate(c *model.Conversation, messageID string, res classifier.Result) bool {
	idx := c.FindMessage(messageID)
	if idx < 0 {
		return false
	}
	msg := &c.Messages[idx]
	msg.Intent = intentRef(res.Intent)
	msg.Confidence = res.Confidence
	return s.flagger.Apply(msg)
}

func (s *Service) recordFlag(flagged bool) {
	if flagged {
		metrics.ReviewFlagsTotal.Inc()
	}
}

// apologize persists the generic apology after a routing failure. It is best effort.
func (s *Service) apologize(ctx context.Context, sessionID string) {
	var msg model.Message
	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		msg = s.appendMessage(c, newMessage(model.SenderBot, s.policy.Rules().ApologyText))
		return nil
	})
	if err != nil {
		s.logger.Error("failed to persist apology",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	s.recordAppended(conv, msg)
}

// StaffReply records a staff answer and forwards it to the user's channel.
// Delivery failures are logged; the reply stays recorded.
func (s *Service) StaffReply(ctx context.Context, sessionID, text, agentID string) (*model.StaffReplyResult, error) {
	ctx, span := tracer.Start(ctx, "service.StaffReply")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("agent_id", agentID),
	)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newError(KindValidation, "message is required", nil)
	}
	if agentID == "" {
		return nil, newError(KindValidation, "agent id is required", nil)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var msg model.Message
	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		if !c.CanReply(agentID) {
			return newError(KindOwnership, "conversation is assigned to another agent", nil)
		}
		m := newMessage(model.SenderAgent, text)
		m.Metadata.AgentID = agentID
		msg = s.appendMessage(c, m)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "staff reply")
		return nil, storeError("staff reply", err)
	}
	s.recordAppended(conv, msg)

	delivered := s.deliver(ctx, conv, text)
	s.publish(ctx, conv, model.EventTypeStaffReply, "")

	return &model.StaffReplyResult{
		Text:      text,
		SessionID: sessionID,
		AgentID:   agentID,
		Platform:  conv.Platform,
		Delivered: delivered,
		Timestamp: msg.Timestamp,
	}, nil
}

// Deliver forwards text to the conversation's channel. It is used by transports
// that route bot replies back to external platforms.
func (s *Service) Deliver(ctx context.Context, conv *model.Conversation, text string) bool {
	return s.deliver(ctx, conv, text)
}

func (s *Service) deliver(ctx context.Context, conv *model.Conversation, text string) bool {
	if s.delivery == nil {
		return false
	}
	if err := s.delivery.Deliver(ctx, conv, text); err != nil {
		s.logger.Warn("channel delivery failed",
			zap.String("session_id", conv.SessionID),
			zap.String("platform", string(conv.Platform)),
			zap.Error(err),
		)
		return false
	}
	return true
}

func intentRef(in model.Intent) *model.Intent {
	return &in
}
