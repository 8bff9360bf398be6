package handlers

import (
	"net/http"
	"strings"

	"github.com/codegenie/apiserver/internal/inference"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// GatewayHandler serves code generation and explanation.
type GatewayHandler struct {
	gateway         *inference.Gateway
	activityService *services.ActivityService
	log             logging.Logger
}

func NewGatewayHandler(gateway *inference.Gateway, activityService *services.ActivityService, log logging.Logger) *GatewayHandler {
	return &GatewayHandler{gateway: gateway, activityService: activityService, log: log}
}

// GatewayRouter registers the inference routes. authMiddleware runs before
// /generate and /explain; callers it identifies get the call recorded in
// their history.
func GatewayRouter(r chi.Router, handler *GatewayHandler, authMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/models", handler.Models)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware...)
		r.Post("/generate", handler.Generate)
		r.Post("/explain", handler.Explain)
	})
}

func (h *GatewayHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelsResponse{Models: h.gateway.Models()})
}

// Generate produces code for a natural-language prompt.
func (h *GatewayHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Model = strings.TrimSpace(req.Model)
	req.Language = strings.TrimSpace(req.Language)
	if strings.TrimSpace(req.Prompt) == "" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	code, err := h.gateway.Generate(r.Context(), req.Prompt, req.Language, req.Model)
	if err != nil {
		writeServiceError(w, r, h.log, err, "generation failed")
		return
	}

	model := req.Model
	if model == "" {
		model = inference.DefaultGenerateModel
	}
	h.record(r, services.QueryRecord{
		Query:         req.Prompt,
		Language:      req.Language,
		GeneratedCode: code,
		Model:         model,
	})

	writeJSON(w, http.StatusOK, GenerateResponse{Code: code})
}

// Explain describes a code snippet.
func (h *GatewayHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Model = strings.TrimSpace(req.Model)
	req.Style = strings.TrimSpace(req.Style)
	if strings.TrimSpace(req.Code) == "" || req.Style == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	explanation, err := h.gateway.Explain(r.Context(), req.Code, req.Style, req.Model)
	if err != nil {
		writeServiceError(w, r, h.log, err, "explanation failed")
		return
	}

	model := req.Model
	if model == "" {
		model = inference.DefaultExplainModel
	}
	h.record(r, services.QueryRecord{
		Query:       req.Code,
		Explanation: explanation,
		Model:       model,
	})

	writeJSON(w, http.StatusOK, ExplainResponse{Explanation: explanation})
}

// record logs the call for an authenticated caller. The answer has already
// been produced, so a failed write does not fail the request.
func (h *GatewayHandler) record(r *http.Request, rec services.QueryRecord) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		return
	}
	rec.UserID = userID
	if _, err := h.activityService.RecordQuery(r.Context(), rec); err != nil {
		h.log.Error(r.Context(), "failed to record query", "user_id", userID, "error", err)
	}
}

type GenerateRequest struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

type GenerateResponse struct {
	Code string `json:"code"`
}

type ExplainRequest struct {
	Code  string `json:"code"`
	Style string `json:"style"`
	Model string `json:"model"`
}

type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

type ModelsResponse struct {
	Models []string `json:"models"`
}
