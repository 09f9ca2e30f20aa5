package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-router/internal/model"
)

func newConv() *model.Conversation {
	return &model.Conversation{SessionID: "s1", Status: model.StatusActive}
}

func TestDecide_Precedence(t *testing.T) {
	p := New(DefaultRules())

	cases := []struct {
		name     string
		text     string
		c        Classification
		escalate bool
		reason   string
	}{
		{"low confidence wins over intent and keyword", "khẩn cấp", Classification{Intent: model.IntentEscalate, Confidence: 0.1}, true, ReasonLowConfidence},
		{"escalate intent wins over keyword", "urgent please", Classification{Intent: model.IntentEscalate, Confidence: 0.9}, true, ReasonUserRequested},
		{"keyword match", "Tôi muốn KHIẾU NẠI", Classification{Intent: "general", Confidence: 0.9}, true, ReasonUrgentKeyword},
		{"english keyword", "please let me talk to a human", Classification{Intent: "general", Confidence: 0.95}, true, ReasonUrgentKeyword},
		{"boundary confidence does not escalate", "hello", Classification{Intent: "greeting", Confidence: 0.3}, false, ""},
		{"plain message", "what are your opening hours", Classification{Intent: "hours", Confidence: 0.8}, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := p.Decide(newConv(), tc.text, tc.c)
			require.Equal(t, tc.escalate, v.Escalate)
			require.Equal(t, tc.reason, v.Reason)
			if tc.escalate {
				require.NotEmpty(t, v.Priority)
			} else {
				require.Empty(t, v.Priority)
			}
		})
	}
}

func TestDecide_AnyLowConfidenceEscalates(t *testing.T) {
	p := New(DefaultRules())
	for _, conf := range []float64{0, 0.01, 0.1, 0.2, 0.29, 0.2999} {
		v := p.Decide(newConv(), "hi", Classification{Intent: "greeting", Confidence: conf})
		require.True(t, v.Escalate, "confidence=%v", conf)
		require.Equal(t, ReasonLowConfidence, v.Reason)
	}
}

func TestDecide_PriorityFromBotText(t *testing.T) {
	p := New(DefaultRules())
	v := p.Decide(newConv(), "khẩn cấp, cần hỗ trợ ngay", Classification{
		Text:       "Đây là vấn đề quan trọng",
		Intent:     "general",
		Confidence: 0.9,
	})
	require.True(t, v.Escalate)
	require.Equal(t, ReasonUrgentKeyword, v.Reason)
	require.Equal(t, model.PriorityHigh, v.Priority)
}

func TestDeterminePriority(t *testing.T) {
	p := New(DefaultRules())

	require.Equal(t, model.PriorityMedium, p.DeterminePriority(""))
	require.Equal(t, model.PriorityMedium, p.DeterminePriority("Cảm ơn bạn"))
	require.Equal(t, model.PriorityHigh, p.DeterminePriority("This is an IMPORTANT question"))
	require.Equal(t, model.PriorityUrgent, p.DeterminePriority("Lỗi nghiêm trọng đã xảy ra"))
	// urgent and high keywords together: urgent wins
	require.Equal(t, model.PriorityUrgent, p.DeterminePriority("urgent problem, important"))
}

func TestStatusCheck(t *testing.T) {
	p := New(DefaultRules())

	require.Equal(t, StatusEscalate, p.StatusCheck(Classification{Intent: model.IntentEscalate, Confidence: 0.9}))
	require.Equal(t, StatusEscalate, p.StatusCheck(Classification{Intent: "general", Confidence: 0.2}))
	require.Equal(t, StatusResolve, p.StatusCheck(Classification{Intent: model.IntentResolved, Confidence: 0.9}))
	require.Equal(t, StatusKeep, p.StatusCheck(Classification{Intent: "general", Confidence: 0.9}))
}

func TestNew_OverridesAndDefaults(t *testing.T) {
	p := New(Rules{
		LowConfidenceThreshold: 0.5,
		EscalationKeywords:     []string{"  HUMAN  "},
	})
	r := p.Rules()
	require.Equal(t, 0.5, r.LowConfidenceThreshold)
	require.Equal(t, 0.7, r.ReviewThreshold)
	require.Equal(t, []string{"human"}, r.EscalationKeywords)
	require.NotEmpty(t, r.UrgentKeywords)
	require.NotEmpty(t, r.HandoffNotice)

	v := p.Decide(newConv(), "get me a Human", Classification{Intent: "general", Confidence: 0.6})
	require.True(t, v.Escalate)
	require.Equal(t, ReasonUrgentKeyword, v.Reason)

	v = p.Decide(newConv(), "complaint", Classification{Intent: "general", Confidence: 0.6})
	require.False(t, v.Escalate, "default keywords are replaced, not merged")
}
