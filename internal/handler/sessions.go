// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-router/internal/middleware"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// SessionHandler handles the end-user chat endpoints.
type SessionHandler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.Service, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// HistoryResponse is the message history of a session.
type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Status    model.Status    `json:"status"`
	Messages  []model.Message `json:"messages"`
}

// Create handles POST /api/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID, err := h.service.CreateSession(r.Context(), req.UserID, req.Platform)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "create session")
		return
	}

	writeJSON(w, http.StatusCreated, &model.CreateSessionResponse{SessionID: sessionID})
}

// SendMessage handles POST /api/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.HandleMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateUserID(req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.HandleMessage(r.Context(), req.Message, req.SessionID, req.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "process message")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// History handles GET /api/sessions/{id}/history
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get history")
		return
	}

	writeJSON(w, http.StatusOK, &HistoryResponse{
		SessionID: conv.SessionID,
		Status:    conv.Status,
		Messages:  conv.Messages,
	})
}

// Rate handles POST /api/sessions/{id}/rate
func (h *SessionHandler) Rate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.RateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateRating(req.Rating); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.Rate(r.Context(), sessionID, req.Rating)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "rate conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
