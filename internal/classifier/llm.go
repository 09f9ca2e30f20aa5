package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/capitalize-ai/support-router/internal/llm"
	"github.com/capitalize-ai/support-router/internal/model"
)

const llmSystemPrompt = `You are the first-line assistant of a customer support desk.
Classify the customer's message and draft a short reply in the customer's language.
Respond with a single JSON object and nothing else:
{"intent": "<label>", "confidence": <0..1>, "text": "<reply>", "quick_replies": ["..."]}
Use intent "escalate" when the customer asks for a human, and "resolved" when the
customer confirms the problem is solved. Otherwise use a short lowercase topic label.`

// LLMBackend classifies with a general-purpose chat model.
type LLMBackend struct {
	client llm.Client
}

// NewLLMBackend creates a backend over client.
func NewLLMBackend(client llm.Client) *LLMBackend {
	return &LLMBackend{client: client}
}

// Name returns the backend name.
func (b *LLMBackend) Name() string {
	return "llm-" + b.client.Name()
}

type llmVerdict struct {
	Intent       string   `json:"intent"`
	Confidence   float64  `json:"confidence"`
	Text         string   `json:"text"`
	QuickReplies []string `json:"quick_replies"`
}

// Classify asks the model for a JSON verdict.
func (b *LLMBackend) Classify(ctx context.Context, req Request) (*Result, error) {
	resp, err := b.client.Complete(ctx, &llm.CompletionRequest{
		System: llmSystemPrompt,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: req.Message},
		},
		JSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm classify: %w", err)
	}

	v, err := parseVerdict(resp.Content)
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:         v.Text,
		Intent:       model.ParseIntent(v.Intent),
		Confidence:   v.Confidence,
		QuickReplies: v.QuickReplies,
	}, nil
}

func parseVerdict(raw string) (*llmVerdict, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var v llmVerdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("llm classify: malformed verdict: %w", err)
	}
	if strings.TrimSpace(v.Text) == "" {
		return nil, fmt.Errorf("llm classify: verdict has no reply text")
	}
	return &v, nil
}
