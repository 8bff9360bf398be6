package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/codegenie/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AdminHandler serves the dashboard and user administration.
type AdminHandler struct {
	userService      *services.UserService
	dashboardService *services.DashboardService
	activityService  *services.ActivityService
	avatarService    *services.AvatarService
	log              logging.Logger
}

func NewAdminHandler(
	userService *services.UserService,
	dashboardService *services.DashboardService,
	activityService *services.ActivityService,
	avatarService *services.AvatarService,
	log logging.Logger,
) *AdminHandler {
	return &AdminHandler{
		userService:      userService,
		dashboardService: dashboardService,
		activityService:  activityService,
		avatarService:    avatarService,
		log:              log,
	}
}

// AdminRouter registers admin routes. Every route requires a token whose
// subject currently holds the admin role.
func AdminRouter(r chi.Router, handler *AdminHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware, handler.requireAdmin)

	r.Get("/stats", handler.Stats)
	r.Get("/search", handler.Search)
	r.Get("/activity", handler.Activity)
	r.Get("/users", handler.ListUsers)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Delete("/", handler.DeleteUser)
		r.Post("/promote", handler.Promote)
		r.Post("/demote", handler.Demote)
		r.Post("/replace", handler.Replace)
		r.Get("/stats", handler.UserStats)
		r.Get("/avatar", handler.Avatar)
	})
}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := h.userService.Get(r.Context(), userID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeServiceError(w, r, h.log, err, "failed to load user")
			return
		}
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	result, err := h.dashboardService.Search(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to search")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Activity returns the activity log, filtered by the user_id query parameter
// when present.
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	activity, err := h.activityService.ActivityFor(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, types.Profiles(users))
}

func (h *AdminHandler) Promote(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.PromoteToAdmin(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to promote user")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (h *AdminHandler) Demote(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Demote(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to demote user")
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// DeleteUser removes the account and, best effort, its avatar. The user's
// activity, history and feedback are kept.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.userService.Delete(r.Context(), userID); err != nil {
		writeServiceError(w, r, h.log, err, "failed to delete user")
		return
	}
	if err := h.avatarService.Delete(r.Context(), userID); err != nil {
		h.log.Warn(r.Context(), "failed to delete avatar", "user_id", userID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Replace moves a user and everything they own to a new identity.
func (h *AdminHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.NewUserID = strings.TrimSpace(req.NewUserID)
	req.NewUsername = strings.TrimSpace(req.NewUsername)
	if req.NewUserID == "" || req.NewUsername == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	oldID := chi.URLParam(r, "userID")
	user, err := h.userService.Replace(r.Context(), services.ReplaceInput{
		OldID:       oldID,
		NewID:       req.NewUserID,
		NewUsername: req.NewUsername,
		NewEmail:    strings.TrimSpace(req.NewEmail),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to replace user")
		return
	}
	if oldID != user.UserID {
		if err := h.avatarService.Move(r.Context(), oldID, user.UserID); err != nil {
			h.log.Warn(r.Context(), "failed to move avatar", "from", oldID, "to", user.UserID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (h *AdminHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.UserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	serveAvatar(w, r, h.avatarService, h.log, chi.URLParam(r, "userID"))
}

type ReplaceRequest struct {
	NewUserID   string `json:"new_user_id"`
	NewUsername string `json:"new_username"`
	NewEmail    string `json:"new_email"`
}
