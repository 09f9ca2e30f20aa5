// Package model defines data structures for the support router.
package model

import (
	"time"
)

// Platform is the channel a conversation originates from.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformFacebook Platform = "facebook"
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformFacebook, PlatformTelegram, PlatformWhatsApp:
		return true
	}
	return false
}

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusResolved  Status = "resolved"
	StatusClosed    Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusEscalated, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Priority is the urgency tier of an escalated conversation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Conversation is one end-user session and its ordered message history.
type Conversation struct {
	SessionID        string     `json:"session_id"`
	UserID           string     `json:"user_id,omitempty"`
	Platform         Platform   `json:"platform"`
	Status           Status     `json:"status"`
	Priority         Priority   `json:"priority,omitempty"`
	Category         string     `json:"category,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	AssignedAgent    string     `json:"assigned_agent,omitempty"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	Satisfaction     *int       `json:"satisfaction,omitempty"`
	Messages         []Message  `json:"messages"`
	StartedAt        time.Time  `json:"started_at"`
	LastActivity     time.Time  `json:"last_activity"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy so callers never share message slices with a store.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.Satisfaction != nil {
		v := *c.Satisfaction
		out.Satisfaction = &v
	}
	if c.EscalatedAt != nil {
		t := *c.EscalatedAt
		out.EscalatedAt = &t
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	out.Messages = make([]Message, len(c.Messages))
	for i := range c.Messages {
		out.Messages[i] = c.Messages[i].Clone()
	}
	return &out
}

// FindMessage returns the index of the message with the given ID, or -1.
func (c *Conversation) FindMessage(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// CountBySender returns how many messages were authored by sender.
func (c *Conversation) CountBySender(sender Sender) int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].Sender == sender {
			n++
		}
	}
	return n
}

// ConversationFilter narrows a conversation listing.
type ConversationFilter struct {
	Status        Status
	UserID        string
	Platform      Platform
	AssignedAgent string
	Limit         int
}

// CreateSessionRequest is the request to open a new session.
type CreateSessionRequest struct {
	UserID   string   `json:"user_id,omitempty"`
	Platform Platform `json:"platform,omitempty"`
}

// CreateSessionResponse carries the new session identifier.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// RateRequest is an end-user satisfaction rating.
type RateRequest struct {
	Rating int `json:"rating"`
}

// AssignRequest assigns a conversation to a staff member.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// Stats is a rollup over conversations started within a window.
type Stats struct {
	Window                 string  `json:"window"`
	TotalConversations     int     `json:"total_conversations"`
	ResolvedConversations  int     `json:"resolved_conversations"`
	EscalatedConversations int     `json:"escalated_conversations"`
	AvgSatisfaction        float64 `json:"avg_satisfaction"`
}
