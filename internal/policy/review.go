package policy

import "github.com/capitalize-ai/support-router/internal/model"

// Flagger marks classified user messages whose confidence is too low to trust as training labels.
type Flagger struct {
	threshold float64
}

// NewFlagger creates a flagger for the given review threshold.
func NewFlagger(threshold float64) *Flagger {
	if threshold <= 0 {
		threshold = DefaultRules().ReviewThreshold
	}
	return &Flagger{threshold: threshold}
}

// Flagger returns the review flagger configured from the policy rules.
func (p *Policy) Flagger() *Flagger {
	return NewFlagger(p.rules.ReviewThreshold)
}

// NeedsReview reports whether msg should be queued for human labeling.
func (f *Flagger) NeedsReview(msg *model.Message) bool {
	return msg.Sender == model.SenderUser && msg.HasIntent() && msg.Confidence < f.threshold
}

// Apply sets the review flag on msg when NeedsReview holds and reports the result.
// An already-set flag is left untouched; only relabeling clears it.
func (f *Flagger) Apply(msg *model.Message) bool {
	if f.NeedsReview(msg) {
		msg.Metadata.NeedReview = true
	}
	return msg.Metadata.NeedReview
}

// Relabel applies a human intent correction and clears the review flag.
func Relabel(msg *model.Message, intent model.Intent) {
	msg.Intent = &intent
	msg.Metadata.NeedReview = false
}
