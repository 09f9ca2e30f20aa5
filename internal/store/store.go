// Package store persists conversation documents, each embedding its ordered message list.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/capitalize-ai/support-router/internal/model"
)

var (
	// ErrNotFound is returned when no conversation or message matches.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a conversation whose session ID is taken.
	ErrExists = errors.New("already exists")
)

const (
	// DefaultListLimit applies when a filter carries no limit.
	DefaultListLimit = 50
	// MaxListLimit caps listing size.
	MaxListLimit = 200
)

// UpdateFunc mutates a conversation inside an atomic update. Returning an
// error aborts the update and leaves the stored document untouched.
type UpdateFunc func(conv *model.Conversation) error

// MessageUpdateFunc mutates the message at index idx of conv.
type MessageUpdateFunc func(conv *model.Conversation, idx int) error

// Store is the conversation repository. Update and UpdateMessage are atomic
// per conversation: concurrent updates to the same document never interleave.
type Store interface {
	Create(ctx context.Context, conv *model.Conversation) error
	Get(ctx context.Context, sessionID string) (*model.Conversation, error)
	Update(ctx context.Context, sessionID string, fn UpdateFunc) (*model.Conversation, error)
	UpdateMessage(ctx context.Context, messageID string, fn MessageUpdateFunc) (*model.Conversation, error)
	List(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, error)
	FindByUser(ctx context.Context, platform model.Platform, userID string) (*model.Conversation, error)
	ListNeedsReview(ctx context.Context) ([]model.ReviewItem, error)
	StartedSince(ctx context.Context, since time.Time) ([]model.Conversation, error)
	Walk(ctx context.Context, fn func(conv *model.Conversation) error) error
	Ping(ctx context.Context) error
	Close()
}

// ClampLimit applies the default and maximum listing size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// ReviewItems flattens the flagged messages of convs, oldest first.
func ReviewItems(convs []*model.Conversation) []model.ReviewItem {
	items := []model.ReviewItem{}
	for _, conv := range convs {
		for _, msg := range conv.Messages {
			if !msg.Metadata.NeedReview {
				continue
			}
			item := model.ReviewItem{
				SessionID:  conv.SessionID,
				MessageID:  msg.ID,
				Text:       msg.Text,
				Confidence: msg.Confidence,
				CreatedAt:  msg.Timestamp,
			}
			if msg.Intent != nil {
				item.Intent = *msg.Intent
			}
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func matches(conv *model.Conversation, f model.ConversationFilter) bool {
	if f.Status != "" && conv.Status != f.Status {
		return false
	}
	if f.UserID != "" && conv.UserID != f.UserID {
		return false
	}
	if f.Platform != "" && conv.Platform != f.Platform {
		return false
	}
	if f.AssignedAgent != "" && conv.AssignedAgent != f.AssignedAgent {
		return false
	}
	return true
}
