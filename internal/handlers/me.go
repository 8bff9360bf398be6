package handlers

import (
	"io"
	"net/http"

	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// MeHandler serves the authenticated user's own data.
type MeHandler struct {
	dashboardService *services.DashboardService
	activityService  *services.ActivityService
	avatarService    *services.AvatarService
	log              logging.Logger
}

func NewMeHandler(
	dashboardService *services.DashboardService,
	activityService *services.ActivityService,
	avatarService *services.AvatarService,
	log logging.Logger,
) *MeHandler {
	return &MeHandler{
		dashboardService: dashboardService,
		activityService:  activityService,
		avatarService:    avatarService,
		log:              log,
	}
}

// MeRouter registers the /me routes. The caller must mount it behind
// RequireAuth and KnownSubject.
func MeRouter(r chi.Router, handler *MeHandler) {
	r.Get("/stats", handler.Stats)
	r.Get("/activity", handler.Activity)
	r.Get("/history", handler.History)
	r.Put("/avatar", handler.PutAvatar)
	r.Get("/avatar", handler.GetAvatar)
}

func (h *MeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.dashboardService.UserStats(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Activity returns the caller's most recent activity, newest first.
func (h *MeHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	activity, err := h.activityService.RecentActivity(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *MeHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	history, err := h.activityService.HistoryFor(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// PutAvatar replaces the caller's avatar with the PNG request body.
func (h *MeHandler) PutAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// One byte past the limit is enough for Upload to reject the body.
	data, err := io.ReadAll(io.LimitReader(r.Body, h.avatarService.MaxBytes()+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.avatarService.Upload(r.Context(), userID, data); err != nil {
		writeServiceError(w, r, h.log, err, "failed to store avatar")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	serveAvatar(w, r, h.avatarService, h.log, userID)
}

func serveAvatar(w http.ResponseWriter, r *http.Request, avatars *services.AvatarService, log logging.Logger, userID string) {
	body, err := avatars.Open(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, log, err, "failed to load avatar")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Warn(r.Context(), "avatar stream interrupted", "user_id", userID, "error", err)
	}
}
