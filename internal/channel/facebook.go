package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultGraphURL is the Messenger Send API endpoint.
const DefaultGraphURL = "https://graph.facebook.com/v21.0/me/messages"

// Facebook sends Messenger replies through the Graph API.
type Facebook struct {
	token    string
	endpoint string
	client   *http.Client
}

// NewFacebook creates a Messenger sender. An empty endpoint uses DefaultGraphURL.
func NewFacebook(pageToken, endpoint string, client *http.Client) *Facebook {
	if endpoint == "" {
		endpoint = DefaultGraphURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Facebook{token: pageToken, endpoint: endpoint, client: client}
}

type fbRecipient struct {
	ID string `json:"id"`
}

type fbText struct {
	Text string `json:"text"`
}

type fbSendRequest struct {
	Recipient fbRecipient `json:"recipient"`
	Message   fbText      `json:"message"`
}

// Send posts text to the page-scoped user ID recipient.
func (f *Facebook) Send(ctx context.Context, recipient, text string) error {
	if f.token == "" {
		return fmt.Errorf("facebook: page access token not configured")
	}

	body, err := json.Marshal(fbSendRequest{
		Recipient: fbRecipient{ID: recipient},
		Message:   fbText{Text: text},
	})
	if err != nil {
		return fmt.Errorf("facebook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("facebook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("facebook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("facebook: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
