package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/support-router/internal/model"
)

// MemoryStore keeps conversations in process. Every read returns a deep copy and
// every update works on a copy that is swapped in only when the mutation succeeds.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	// messageIndex maps message ID to session ID.
	messageIndex map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messageIndex:  make(map[string]string),
	}
}

// Create stores a new conversation.
func (s *MemoryStore) Create(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.SessionID]; exists {
		return ErrExists
	}
	s.conversations[conv.SessionID] = conv.Clone()
	s.index(conv)
	return nil
}

// Get retrieves a conversation by session ID.
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[sessionID]
	if !exists {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// Update applies fn atomically.
func (s *MemoryStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[sessionID]
	if !exists {
		return nil, ErrNotFound
	}
	return s.apply(conv, fn)
}

// UpdateMessage applies fn to the conversation holding messageID.
func (s *MemoryStore) UpdateMessage(ctx context.Context, messageID string, fn MessageUpdateFunc) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.messageIndex[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	conv := s.conversations[sessionID]
	idx := conv.FindMessage(messageID)
	if idx < 0 {
		return nil, ErrNotFound
	}
	return s.apply(conv, func(c *model.Conversation) error {
		return fn(c, idx)
	})
}

func (s *MemoryStore) apply(conv *model.Conversation, fn UpdateFunc) (*model.Conversation, error) {
	work := conv.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.SessionID = conv.SessionID
	s.conversations[conv.SessionID] = work
	s.index(work)
	return work.Clone(), nil
}

func (s *MemoryStore) index(conv *model.Conversation) {
	for i := range conv.Messages {
		s.messageIndex[conv.Messages[i].ID] = conv.SessionID
	}
}

// List returns conversations matching f, most recently active first.
func (s *MemoryStore) List(ctx context.Context, f model.ConversationFilter) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := []model.Conversation{}
	for _, conv := range s.conversations {
		if matches(conv, f) {
			convs = append(convs, *conv.Clone())
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastActivity.After(convs[j].LastActivity)
	})

	limit := ClampLimit(f.Limit)
	if len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// FindByUser returns the most recently active conversation of an external user.
func (s *MemoryStore) FindByUser(ctx context.Context, platform model.Platform, userID string) (*model.Conversation, error) {
	convs, err := s.List(ctx, model.ConversationFilter{Platform: platform, UserID: userID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrNotFound
	}
	return &convs[0], nil
}

// ListNeedsReview returns every flagged message across conversations.
func (s *MemoryStore) ListNeedsReview(ctx context.Context) ([]model.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	return ReviewItems(convs), nil
}

// StartedSince returns conversations started at or after since.
func (s *MemoryStore) StartedSince(ctx context.Context, since time.Time) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := []model.Conversation{}
	for _, conv := range s.conversations {
		if !conv.StartedAt.Before(since) {
			convs = append(convs, *conv.Clone())
		}
	}
	return convs, nil
}

// Walk calls fn with a copy of every conversation, oldest first.
func (s *MemoryStore) Walk(ctx context.Context, fn func(conv *model.Conversation) error) error {
	s.mu.RLock()
	convs := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].StartedAt.Before(convs[j].StartedAt)
	})
	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(conv); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() {}
