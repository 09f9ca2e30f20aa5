// Package service implements the conversation lifecycle, message routing and
// review workflow on top of a conversation store.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/classifier"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/policy"
	"github.com/capitalize-ai/support-router/internal/store"
	"github.com/capitalize-ai/support-router/pkg/logger"
	"github.com/capitalize-ai/support-router/pkg/metrics"
)

// Classifier answers a user message. Implementations must not fail; see classifier.Gateway.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) classifier.Result
}

// AgentSelector picks a staff member for a newly escalated conversation.
// An empty ID means no agent is available, which is not an error.
type AgentSelector interface {
	SelectAgent(ctx context.Context, conv *model.Conversation) (string, error)
}

// EventPublisher notifies staff tooling of lifecycle changes.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// Deliverer pushes a message to the end user of conv on its platform channel.
type Deliverer interface {
	Deliver(ctx context.Context, conv *model.Conversation, text string) error
}

type noAgent struct{}

func (noAgent) SelectAgent(context.Context, *model.Conversation) (string, error) { return "", nil }

type noEvents struct{}

func (noEvents) PublishEvent(context.Context, *model.ConversationEvent) (uint64, error) { return 0, nil }

// Deps are the collaborators of a Service. Store, Classifier and Policy are required.
type Deps struct {
	Store      store.Store
	Classifier Classifier
	Policy     *policy.Policy
	Agents     AgentSelector
	Events     EventPublisher
	Delivery   Deliverer
	Logger     *logger.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service is the conversation API.
type Service struct {
	store      store.Store
	classifier Classifier
	policy     *policy.Policy
	flagger    *policy.Flagger
	agents     AgentSelector
	events     EventPublisher
	delivery   Deliverer
	logger     *logger.Logger
	now        func() time.Time
	locks      *sessionLocks
}

// New creates a Service.
func New(d Deps) *Service {
	s := &Service{
		store:      d.Store,
		classifier: d.Classifier,
		policy:     d.Policy,
		agents:     d.Agents,
		events:     d.Events,
		delivery:   d.Delivery,
		logger:     d.Logger,
		now:        d.Now,
		locks:      newSessionLocks(),
	}
	if s.policy == nil {
		s.policy = policy.New(policy.DefaultRules())
	}
	s.flagger = s.policy.Flagger()
	if s.agents == nil {
		s.agents = noAgent{}
	}
	if s.events == nil {
		s.events = noEvents{}
	}
	if s.logger == nil {
		s.logger = logger.Global()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateSession opens a new active conversation and returns its ID.
func (s *Service) CreateSession(ctx context.Context, userID string, platform model.Platform) (string, error) {
	conv, err := s.createSession(ctx, userID, platform)
	if err != nil {
		return "", err
	}
	return conv.SessionID, nil
}

func (s *Service) createSession(ctx context.Context, userID string, platform model.Platform) (*model.Conversation, error) {
	if platform == "" {
		platform = model.PlatformWeb
	}
	if !platform.Valid() {
		return nil, newError(KindValidation, "unsupported platform "+string(platform), nil)
	}

	conv := model.NewConversation(uuid.Must(uuid.NewV7()).String(), userID, platform, s.now())
	if err := s.store.Create(ctx, conv); err != nil {
		return nil, storeError("create session", err)
	}

	metrics.ConversationsTotal.WithLabelValues(string(platform)).Inc()
	s.logger.Info("session created",
		zap.String("session_id", conv.SessionID),
		zap.String("platform", string(platform)),
	)
	return conv, nil
}

// SessionForExternalUser returns the latest open conversation of a channel user,
// creating one when the user has none or the latest is closed.
func (s *Service) SessionForExternalUser(ctx context.Context, platform model.Platform, userID string) (*model.Conversation, error) {
	if userID == "" {
		return nil, newError(KindValidation, "user id is required", nil)
	}
	unlock := s.locks.Lock("user:" + string(platform) + ":" + userID)
	defer unlock()

	conv, err := s.store.FindByUser(ctx, platform, userID)
	switch {
	case err == nil && conv.Status != model.StatusClosed:
		return conv, nil
	case err == nil, errors.Is(err, store.ErrNotFound):
		return s.createSession(ctx, userID, platform)
	default:
		return nil, storeError("find session", err)
	}
}

// Get returns a conversation.
func (s *Service) Get(ctx context.Context, sessionID string) (*model.Conversation, error) {
	if sessionID == "" {
		return nil, newError(KindValidation, "session id is required", nil)
	}
	conv, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, storeError("get conversation", err)
	}
	return conv, nil
}

// History returns the ordered messages of a conversation.
func (s *Service) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	conv, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// List returns conversations matching f, most recently active first.
func (s *Service) List(ctx context.Context, f model.ConversationFilter) (*model.ListConversationsResponse, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, newError(KindValidation, "unknown status "+string(f.Status), nil)
	}
	if f.Platform != "" && !f.Platform.Valid() {
		return nil, newError(KindValidation, "unknown platform "+string(f.Platform), nil)
	}
	f.Limit = store.ClampLimit(f.Limit)

	convs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, storeError("list conversations", err)
	}
	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	}, nil
}

// Rate records the end-user satisfaction score.
func (s *Service) Rate(ctx context.Context, sessionID string, rating int) (*model.Conversation, error) {
	if rating < 1 || rating > 5 {
		return nil, newError(KindValidation, "rating must be between 1 and 5", nil)
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		if err := c.Rate(rating, s.now()); err != nil {
			return newError(KindValidation, "conversation already rated", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeError("rate conversation", err)
	}
	return conv, nil
}

// Assign gives ownership of a conversation to agentID, escalating it if active.
func (s *Service) Assign(ctx context.Context, sessionID, agentID string) (*model.Conversation, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, newError(KindValidation, "agent id is required", nil)
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var escalated bool
	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		escalated = c.Assign(agentID, s.now())
		return nil
	})
	if err != nil {
		return nil, storeError("assign conversation", err)
	}

	if escalated {
		metrics.RecordEscalation(policy.ReasonAssignedToAgent, string(conv.Priority))
	}
	s.publish(ctx, conv, model.EventTypeAssigned, "")
	s.logger.Info("conversation assigned",
		zap.String("session_id", sessionID),
		zap.String("agent_id", agentID),
		zap.Bool("escalated", escalated),
	)
	return conv, nil
}

// Close ends a conversation from any state.
func (s *Service) Close(ctx context.Context, sessionID string) (*model.Conversation, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var changed bool
	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		changed = c.Close(s.now())
		return nil
	})
	if err != nil {
		return nil, storeError("close conversation", err)
	}
	if changed {
		metrics.RecordTransition(string(model.StatusClosed))
		s.publish(ctx, conv, model.EventTypeClosed, "")
	}
	return conv, nil
}

// Resolve marks a conversation resolved on behalf of staff.
func (s *Service) Resolve(ctx context.Context, sessionID string) (*model.Conversation, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	var changed bool
	conv, err := s.store.Update(ctx, sessionID, func(c *model.Conversation) error {
		var err error
		changed, err = c.Resolve(s.now())
		if err != nil {
			return newError(KindValidation, "conversation is closed", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeError("resolve conversation", err)
	}
	if changed {
		metrics.RecordTransition(string(model.StatusResolved))
		s.publish(ctx, conv, model.EventTypeResolved, "")
	}
	return conv, nil
}

// newMessage builds a message with a fresh ID. Timestamps are assigned on append.
func newMessage(sender model.Sender, text string) model.Message {
	return model.Message{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Text:   text,
		Sender: sender,
	}
}

// appendMessage appends msg inside an update, applying the review rule to it.
func (s *Service) appendMessage(c *model.Conversation, msg model.Message) model.Message {
	c.Append(msg, s.now())
	stored := &c.Messages[len(c.Messages)-1]
	s.flagger.Apply(stored)
	return *stored
}

// recordAppended emits metrics for messages committed by an update.
func (s *Service) recordAppended(conv *model.Conversation, msgs ...model.Message) {
	for _, m := range msgs {
		metrics.RecordMessage(string(conv.Platform), string(m.Sender))
		if m.Metadata.NeedReview {
			metrics.ReviewFlagsTotal.Inc()
		}
	}
}

// publish emits a lifecycle event. Failures are logged and never fail the caller.
func (s *Service) publish(ctx context.Context, conv *model.Conversation, eventType model.EventType, reason string) {
	event := &model.ConversationEvent{
		ID:            uuid.Must(uuid.NewV7()).String(),
		SessionID:     conv.SessionID,
		Type:          eventType,
		Status:        conv.Status,
		Priority:      conv.Priority,
		AssignedAgent: conv.AssignedAgent,
		Reason:        reason,
		Platform:      conv.Platform,
		CreatedAt:     s.now(),
	}
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.String("session_id", conv.SessionID),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}
