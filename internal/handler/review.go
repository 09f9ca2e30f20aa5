package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-router/internal/middleware"
	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// ReviewHandler handles the intent labeling endpoints.
type ReviewHandler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(svc *service.Service, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  log,
	}
}

// ReviewListResponse lists flagged messages.
type ReviewListResponse struct {
	Messages []model.ReviewItem `json:"messages"`
	Total    int                `json:"total"`
}

// List handles GET /api/review
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListNeedsReview(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list messages for review")
		return
	}
	if items == nil {
		items = []model.ReviewItem{}
	}

	writeJSON(w, http.StatusOK, &ReviewListResponse{Messages: items, Total: len(items)})
}

// Label handles POST /api/review/{messageID}/label
func (h *ReviewHandler) Label(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.LabelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.service.LabelIntent(r.Context(), messageID, req.Intent)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "label message")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
