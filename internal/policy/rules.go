// Package policy holds the routing rules that decide escalation, priority and review flags.
package policy

// Rules are the tunable thresholds and keyword lists used by the router.
type Rules struct {
	// LowConfidenceThreshold escalates any classification strictly below it.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
	// ReviewThreshold flags classified user messages strictly below it for labeling review.
	ReviewThreshold float64 `yaml:"review_threshold"`

	// EscalationKeywords are matched against the raw user text.
	EscalationKeywords []string `yaml:"escalation_keywords"`
	// UrgentKeywords and HighKeywords are matched against the bot reply to rank priority.
	UrgentKeywords []string `yaml:"urgent_keywords"`
	HighKeywords   []string `yaml:"high_keywords"`

	HandoffNotice string `yaml:"handoff_notice"`
	ApologyText   string `yaml:"apology_text"`
	FallbackText  string `yaml:"fallback_text"`
}

// DefaultRules returns the production rule set.
func DefaultRules() Rules {
	return Rules{
		LowConfidenceThreshold: 0.3,
		ReviewThreshold:        0.7,
		EscalationKeywords: []string{
			"khẩn cấp",
			"gấp",
			"ngay lập tức",
			"lỗi nghiêm trọng",
			"khiếu nại",
			"phàn nàn",
			"không hài lòng",
			"tức giận",
			"muốn nói chuyện với người",
			"chuyển cho nhân viên",
			"gặp trực tiếp",
			"gọi điện",
			"urgent",
			"right now",
			"serious error",
			"complaint",
			"angry",
			"talk to a human",
			"transfer to staff",
			"call me",
		},
		UrgentKeywords: []string{
			"khẩn cấp",
			"gấp",
			"ngay lập tức",
			"lỗi nghiêm trọng",
			"urgent",
			"immediately",
			"serious error",
		},
		HighKeywords: []string{
			"quan trọng",
			"cần thiết",
			"vấn đề",
			"important",
			"necessary",
			"problem",
		},
		HandoffNotice: "Tôi hiểu vấn đề của bạn. Để đảm bảo bạn được hỗ trợ tốt nhất, tôi sẽ chuyển cuộc trò chuyện này cho nhân viên hỗ trợ. Họ sẽ liên hệ với bạn sớm nhất có thể.",
		ApologyText:   "Xin lỗi, có lỗi xảy ra. Vui lòng thử lại sau.",
		FallbackText:  "Xin lỗi, hệ thống đang bận. Vui lòng thử lại sau.",
	}
}

// WithDefaults fills zero-valued fields from DefaultRules.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	if r.LowConfidenceThreshold <= 0 {
		r.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if r.ReviewThreshold <= 0 {
		r.ReviewThreshold = d.ReviewThreshold
	}
	if r.EscalationKeywords == nil {
		r.EscalationKeywords = d.EscalationKeywords
	}
	if r.UrgentKeywords == nil {
		r.UrgentKeywords = d.UrgentKeywords
	}
	if r.HighKeywords == nil {
		r.HighKeywords = d.HighKeywords
	}
	if r.HandoffNotice == "" {
		r.HandoffNotice = d.HandoffNotice
	}
	if r.ApologyText == "" {
		r.ApologyText = d.ApologyText
	}
	if r.FallbackText == "" {
		r.FallbackText = d.FallbackText
	}
	return r
}
