package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeEscalated  EventType = "escalated"
	EventTypeResolved   EventType = "resolved"
	EventTypeClosed     EventType = "closed"
	EventTypeAssigned   EventType = "assigned"
	EventTypeStaffReply EventType = "staff_reply"
	EventTypeError      EventType = "error"
)

// ConversationEvent is published to staff tooling when a conversation changes hands or state.
type ConversationEvent struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	Type          EventType      `json:"type"`
	Status        Status         `json:"status"`
	Priority      Priority       `json:"priority,omitempty"`
	AssignedAgent string         `json:"assigned_agent,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Platform      Platform       `json:"platform"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Sequence      uint64         `json:"sequence,omitempty"`
}

// OutboundMessage is a reply pushed to a web-channel client.
type OutboundMessage struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	AgentID   string    `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Sequence  uint64    `json:"sequence,omitempty"`
}
