package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-router/internal/middleware"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// ConversationHandler handles the staff console endpoints.
type ConversationHandler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.Service, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.list(w, r, model.ConversationFilter{
		Status:        model.Status(q.Get("status")),
		UserID:        q.Get("user_id"),
		Platform:      model.Platform(q.Get("platform")),
		AssignedAgent: q.Get("agent_id"),
	})
}

// Escalated handles GET /api/conversations/escalated
func (h *ConversationHandler) Escalated(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.ConversationFilter{
		Status:        model.StatusEscalated,
		AssignedAgent: r.URL.Query().Get("agent_id"),
	})
}

func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request, f model.ConversationFilter) {
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = parsed
	}

	resp, err := h.service.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Assign handles POST /api/conversations/{id}/assign
// An empty agent_id assigns the conversation to the caller.
func (h *ConversationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	var req model.AssignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		req.AgentID = middleware.GetAgentID(r.Context())
	}

	conv, err := h.service.Assign(r.Context(), sessionID, req.AgentID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "assign conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Reply handles POST /api/conversations/{id}/reply
func (h *ConversationHandler) Reply(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	var req model.StaffReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.StaffReply(r.Context(), sessionID, req.Message, middleware.GetAgentID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "send reply")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// Close handles POST /api/conversations/{id}/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Close(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "close conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Resolve handles POST /api/conversations/{id}/resolve
func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Resolve(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "resolve conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Stats handles GET /api/stats?window=7d
func (h *ConversationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "compute statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return sessionID, true
}
