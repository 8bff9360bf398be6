package handlers

import (
	"net/http"
	"strings"

	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

type FeedbackHandler struct {
	activityService *services.ActivityService
	log             logging.Logger
}

func NewFeedbackHandler(activityService *services.ActivityService, log logging.Logger) *FeedbackHandler {
	return &FeedbackHandler{activityService: activityService, log: log}
}

// FeedbackRouter registers the feedback route behind authMiddleware, which
// must put a subject in the request context.
func FeedbackRouter(r chi.Router, handler *FeedbackHandler, authMiddleware ...func(http.Handler) http.Handler) {
	r.With(authMiddleware...).Post("/feedback", handler.Create)
}

// Create stores a rating for a previous answer.
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	fb, err := h.activityService.RecordFeedback(r.Context(), userID, strings.TrimSpace(req.Query), req.Rating, strings.TrimSpace(req.Comments))
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to record feedback")
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

type FeedbackRequest struct {
	Query    string `json:"query"`
	Rating   int    `json:"rating"`
	Comments string `json:"comments"`
}
