package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/metrics"
)

const (
	// StreamName is the name of the support stream.
	StreamName = "SUPPORT"

	// SubjectPrefix is the prefix for all support subjects.
	SubjectPrefix = "support"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the support stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation lifecycle events and web channel replies",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a conversation event.
func EventSubject(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, sessionID, eventType)
}

// ReplySubject returns the subject web clients of a session read replies from.
func ReplySubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.reply", SubjectPrefix, sessionID)
}

// PublishEvent publishes a conversation event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	seq, err := m.publish(ctx, EventSubject(event.SessionID, event.Type), event)
	metrics.RecordEvent(string(event.Type), err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return seq, nil
}

// PublishReply publishes a reply for the web client of a session.
func (m *StreamManager) PublishReply(ctx context.Context, msg *model.OutboundMessage) (uint64, error) {
	seq, err := m.publish(ctx, ReplySubject(msg.SessionID), msg)
	if err != nil {
		return 0, fmt.Errorf("failed to publish reply: %w", err)
	}
	return seq, nil
}

func (m *StreamManager) publish(ctx context.Context, subject string, v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, err
	}
	return ack.Sequence, nil
}

// Replies returns up to limit replies of a session published after afterSequence.
func (m *StreamManager) Replies(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.OutboundMessage, uint64, bool, error) {
	consumer, err := m.replyConsumer(ctx, sessionID, afterSequence)
	if err != nil {
		return nil, 0, false, err
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch replies: %w", err)
	}

	var replies []model.OutboundMessage
	lastSequence := afterSequence
	for msg := range batch.Messages() {
		reply, ok := decodeReply(msg)
		if !ok {
			continue
		}
		lastSequence = reply.Sequence
		replies = append(replies, reply)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return replies, lastSequence, len(replies) == limit, nil
}

// WatchReplies calls fn for every reply of a session published after
// afterSequence until ctx is done.
func (m *StreamManager) WatchReplies(ctx context.Context, sessionID string, afterSequence uint64, fn func(model.OutboundMessage)) error {
	consumer, err := m.replyConsumer(ctx, sessionID, afterSequence)
	if err != nil {
		return err
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if reply, ok := decodeReply(msg); ok {
			fn(reply)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to consume replies: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

func (m *StreamManager) replyConsumer(ctx context.Context, sessionID string, afterSequence uint64) (jetstream.Consumer, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ReplySubject(sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return consumer, nil
}

func decodeReply(msg jetstream.Msg) (model.OutboundMessage, bool) {
	var reply model.OutboundMessage
	if err := json.Unmarshal(msg.Data(), &reply); err != nil {
		return reply, false
	}
	if meta, err := msg.Metadata(); err == nil {
		reply.Sequence = meta.Sequence.Stream
	}
	return reply, true
}
