package policy

import (
	"strings"

	"github.com/capitalize-ai/support-router/internal/model"
)

// Escalation reasons recorded on the conversation.
const (
	ReasonLowConfidence   = "low confidence"
	ReasonUserRequested   = "user requested escalation"
	ReasonUrgentKeyword   = "urgent keyword match"
	ReasonAssignedToAgent = "assigned to agent"
)

// Classification is the subset of a classifier result the policy looks at.
type Classification struct {
	Text       string
	Intent     model.Intent
	Confidence float64
}

// Verdict is the outcome of Decide.
type Verdict struct {
	Escalate bool
	Priority model.Priority
	Reason   string
}

// StatusAction is what the secondary status check asks the state machine to do.
type StatusAction int

const (
	StatusKeep StatusAction = iota
	StatusEscalate
	StatusResolve
)

// Policy evaluates Rules. It has no side effects and is safe for concurrent use.
type Policy struct {
	rules Rules
}

// New creates a policy over rules, filling unset fields with defaults.
func New(rules Rules) *Policy {
	rules = rules.WithDefaults()
	return &Policy{rules: normalize(rules)}
}

// Rules returns the effective rule set.
func (p *Policy) Rules() Rules {
	return p.rules
}

// Decide returns whether the conversation should be handed to staff. The first
// matching rule determines the reason: low confidence, explicit escalate intent,
// then urgent keywords in the user's own text.
func (p *Policy) Decide(conv *model.Conversation, userText string, c Classification) Verdict {
	var reason string
	switch {
	case c.Confidence < p.rules.LowConfidenceThreshold:
		reason = ReasonLowConfidence
	case c.Intent == model.IntentEscalate:
		reason = ReasonUserRequested
	case containsAny(userText, p.rules.EscalationKeywords):
		reason = ReasonUrgentKeyword
	default:
		return Verdict{}
	}
	return Verdict{
		Escalate: true,
		Priority: p.DeterminePriority(c.Text),
		Reason:   reason,
	}
}

// DeterminePriority ranks the urgency of a hand-off from the bot's reply text.
func (p *Policy) DeterminePriority(botText string) model.Priority {
	switch {
	case botText == "":
		return model.PriorityMedium
	case containsAny(botText, p.rules.UrgentKeywords):
		return model.PriorityUrgent
	case containsAny(botText, p.rules.HighKeywords):
		return model.PriorityHigh
	}
	return model.PriorityMedium
}

// StatusCheck re-applies the threshold and intent rules after a normal bot reply.
// It overlaps with Decide for escalation and additionally resolves on the resolved intent.
func (p *Policy) StatusCheck(c Classification) StatusAction {
	if c.Intent == model.IntentEscalate || c.Confidence < p.rules.LowConfidenceThreshold {
		return StatusEscalate
	}
	if c.Intent == model.IntentResolved {
		return StatusResolve
	}
	return StatusKeep
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// normalize lowercases keywords once so matching only lowercases the input.
func normalize(r Rules) Rules {
	r.EscalationKeywords = lowerAll(r.EscalationKeywords)
	r.UrgentKeywords = lowerAll(r.UrgentKeywords)
	r.HighKeywords = lowerAll(r.HighKeywords)
	return r
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
