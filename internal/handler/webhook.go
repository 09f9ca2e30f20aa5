package handler

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/channel"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// WebhookHandler receives Facebook Messenger webhooks.
type WebhookHandler struct {
	router      channel.Router
	delivery    channel.Deliverer
	verifyToken string
	logger      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(r channel.Router, d channel.Deliverer, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		router:      r,
		delivery:    d,
		verifyToken: verifyToken,
		logger:      log,
	}
}

type fbWebhook struct {
	Object string    `json:"object"`
	Entry  []fbEntry `json:"entry"`
}

type fbEntry struct {
	ID        string        `json:"id"`
	Messaging []fbMessaging `json:"messaging"`
}

type fbMessaging struct {
	Sender  fbParticipant `json:"sender"`
	Message *fbMessage    `json:"message,omitempty"`
}

type fbParticipant struct {
	ID string `json:"id"`
}

type fbMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// Verify handles GET /webhook/facebook
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	if mode == "" || token == "" {
		writeError(w, http.StatusBadRequest, "missing verification parameters")
		return
	}

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	h.logger.Info("facebook webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

// Receive handles POST /webhook/facebook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var body fbWebhook
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Object != "page" {
		writeError(w, http.StatusNotFound, "unsupported webhook object")
		return
	}

	for _, entry := range body.Entry {
		for _, event := range entry.Messaging {
			if event.Message == nil || event.Message.IsEcho || event.Message.Text == "" || event.Sender.ID == "" {
				continue
			}
			if _, err := channel.Relay(r.Context(), h.router, h.delivery, h.logger, model.PlatformFacebook, event.Sender.ID, event.Message.Text); err != nil {
				h.logger.Error("failed to process facebook message",
					zap.String("sender_id", event.Sender.ID),
					zap.String("mid", event.Message.MID),
					zap.Error(err),
				)
			}
		}
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}
