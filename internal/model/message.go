package model

import (
	"strings"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAgent Sender = "agent"
)

// Intent is a classification label. The reserved codes below carry routing meaning;
// any other value is an open-ended label defined by the classifier.
type Intent string

const (
	IntentUnknown  Intent = "unknown"
	IntentEscalate Intent = "escalate"
	IntentResolved Intent = "resolved"
)

// legacyIntentCodes maps the numeric codes emitted by older classifier builds.
var legacyIntentCodes = map[string]Intent{
	"0": IntentUnknown,
	"2": IntentEscalate,
	"6": IntentResolved,
}

// ParseIntent normalises a raw classifier label.
func ParseIntent(raw string) Intent {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "null" {
		return IntentUnknown
	}
	if in, ok := legacyIntentCodes[s]; ok {
		return in
	}
	return Intent(s)
}

// Reserved reports whether the intent is one of the routing codes.
func (i Intent) Reserved() bool {
	return i == IntentUnknown || i == IntentEscalate || i == IntentResolved
}

// MessageMetadata holds per-message flags.
type MessageMetadata struct {
	NeedReview bool   `json:"need_review,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	Sender     Sender          `json:"sender"`
	Timestamp  time.Time       `json:"timestamp"`
	Intent     *Intent         `json:"intent,omitempty"`
	Confidence float64         `json:"confidence"`
	Metadata   MessageMetadata `json:"metadata"`
}

// Clone returns a copy that does not share the intent pointer.
func (m Message) Clone() Message {
	if m.Intent != nil {
		in := *m.Intent
		m.Intent = &in
	}
	return m
}

// HasIntent reports whether the message carries a classification label.
func (m *Message) HasIntent() bool {
	return m.Intent != nil && *m.Intent != ""
}

// Classification is the verdict attached to a message.
type Classification struct {
	Intent     Intent
	Confidence float64
}

// HandleMessageRequest is an inbound end-user message.
type HandleMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

// RouterResult is the outcome of routing one inbound message.
type RouterResult struct {
	Text         *string      `json:"text"`
	SessionID    string       `json:"session_id"`
	Intent       Intent       `json:"intent,omitempty"`
	Confidence   float64      `json:"confidence"`
	Status       Status       `json:"status"`
	Escalated    bool         `json:"escalated"`
	NoReply      bool         `json:"no_reply"`
	QuickReplies []string     `json:"quick_replies,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// Attachment is an opaque rich element returned by the classifier.
type Attachment map[string]any

// StaffReplyRequest is a reply authored by staff.
type StaffReplyRequest struct {
	Message string `json:"message"`
}

// StaffReplyResult describes a recorded staff reply.
type StaffReplyResult struct {
	Text      string    `json:"text"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Platform  Platform  `json:"platform"`
	Delivered bool      `json:"delivered"`
	Timestamp time.Time `json:"timestamp"`
}

// LabelRequest corrects the intent of a flagged message.
type LabelRequest struct {
	Intent string `json:"intent"`
}

// ReviewItem is a flagged message with its conversation context.
type ReviewItem struct {
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	Intent     Intent    `json:"intent,omitempty"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// TrainingSample is a reviewed user utterance with its intent.
type TrainingSample struct {
	Text   string `json:"text"`
	Intent Intent `json:"intent"`
}
