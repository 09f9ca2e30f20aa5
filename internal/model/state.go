package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a lifecycle transition is not allowed from the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// NewConversation opens a conversation in the active state.
func NewConversation(sessionID, userID string, platform Platform, now time.Time) *Conversation {
	return &Conversation{
		SessionID:    sessionID,
		UserID:       userID,
		Platform:     platform,
		Status:       StatusActive,
		Category:     "general",
		Messages:     []Message{},
		StartedAt:    now,
		LastActivity: now,
	}
}

// Append adds msg at the end of the history. The timestamp is clamped so the
// history stays non-decreasing even if the wall clock steps backwards.
func (c *Conversation) Append(msg Message, now time.Time) Message {
	if n := len(c.Messages); n > 0 && now.Before(c.Messages[n-1].Timestamp) {
		now = c.Messages[n-1].Timestamp
	}
	msg.Timestamp = now
	c.Messages = append(c.Messages, msg)
	c.LastActivity = now
	return msg
}

// Escalate hands the conversation to staff. Re-escalating an escalated
// conversation is a no-op and reports false.
func (c *Conversation) Escalate(priority Priority, reason, agentID string, now time.Time) (bool, error) {
	switch c.Status {
	case StatusEscalated:
		return false, nil
	case StatusActive:
	default:
		return false, fmt.Errorf("escalate from %s: %w", c.Status, ErrInvalidTransition)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	c.Status = StatusEscalated
	c.Priority = priority
	c.EscalationReason = reason
	c.EscalatedAt = &now
	if agentID != "" {
		c.AssignedAgent = agentID
	}
	c.LastActivity = now
	return true, nil
}

// Resolve marks the issue as resolved.
func (c *Conversation) Resolve(now time.Time) (bool, error) {
	switch c.Status {
	case StatusResolved:
		return false, nil
	case StatusActive, StatusEscalated:
	default:
		return false, fmt.Errorf("resolve from %s: %w", c.Status, ErrInvalidTransition)
	}
	c.Status = StatusResolved
	c.ResolvedAt = &now
	c.LastActivity = now
	return true, nil
}

// Close ends the conversation from any state.
func (c *Conversation) Close(now time.Time) bool {
	if c.Status == StatusClosed {
		return false
	}
	c.Status = StatusClosed
	if c.ResolvedAt == nil {
		c.ResolvedAt = &now
	}
	c.LastActivity = now
	return true
}

// Assign gives ownership to agentID. An active conversation becomes escalated
// because assignment implies staff ownership.
func (c *Conversation) Assign(agentID string, now time.Time) (escalated bool) {
	c.AssignedAgent = agentID
	c.LastActivity = now
	if c.Status != StatusActive {
		return false
	}
	escalated, _ = c.Escalate(PriorityMedium, "assigned to agent", agentID, now)
	return escalated
}

// CanReply reports whether agentID may answer in this conversation.
func (c *Conversation) CanReply(agentID string) bool {
	return c.AssignedAgent == "" || c.AssignedAgent == agentID
}

// ErrAlreadyRated is returned when a second, different rating is submitted.
var ErrAlreadyRated = errors.New("conversation already rated")

// Rate records the end-user satisfaction score. Repeating the same score is accepted.
func (c *Conversation) Rate(rating int, now time.Time) error {
	if c.Satisfaction != nil {
		if *c.Satisfaction == rating {
			return nil
		}
		return ErrAlreadyRated
	}
	c.Satisfaction = &rating
	c.LastActivity = now
	return nil
}
