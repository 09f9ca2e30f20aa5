package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/capitalize-ai/support-router/internal/model"
)

// HTTPBackend calls a classification service that speaks the chatbot JSON contract.
type HTTPBackend struct {
	url    string
	client *http.Client
}

// NewHTTPBackend creates a backend posting to url. The gateway owns the timeout,
// so the client itself is left unbounded unless one is supplied.
func NewHTTPBackend(url string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{url: url, client: client}
}

// Name returns the backend name.
func (b *HTTPBackend) Name() string {
	return "http"
}

type httpRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Platform  string `json:"platform"`
}

type httpResponse struct {
	Text         string             `json:"text"`
	Intent       json.RawMessage    `json:"intent"`
	Confidence   float64            `json:"confidence"`
	QuickReplies []string           `json:"quick_replies"`
	Attachments  []model.Attachment `json:"attachments"`
	SessionID    string             `json:"session_id"`
}

// Classify posts the message and decodes the verdict.
func (b *HTTPBackend) Classify(ctx context.Context, req Request) (*Result, error) {
	platform := req.Platform
	if platform == "" {
		platform = model.PlatformWeb
	}
	body, err := json.Marshal(httpRequest{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Platform:  string(platform),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal classifier request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classifier request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &ErrStatus{Code: resp.StatusCode}
	}

	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}

	return &Result{
		Text:         out.Text,
		Intent:       intentFromJSON(out.Intent),
		Confidence:   out.Confidence,
		QuickReplies: out.QuickReplies,
		Attachments:  out.Attachments,
	}, nil
}

// intentFromJSON accepts both string labels and the legacy numeric codes.
func intentFromJSON(raw json.RawMessage) model.Intent {
	if len(raw) == 0 {
		return model.IntentUnknown
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return model.ParseIntent(s)
	}
	return model.ParseIntent(strings.TrimSpace(string(raw)))
}
