package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/codegenie/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 24 * time.Hour

// AuthHandler provides JWT authentication and account recovery endpoints.
type AuthHandler struct {
	userService     *services.UserService
	recoveryService *services.RecoveryService
	secret          []byte
	tokenTTL        time.Duration
	exposeOTP       bool
	log             logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	userService *services.UserService,
	recoveryService *services.RecoveryService,
	jwtSecret string,
	tokenTTL time.Duration,
	exposeOTP bool,
	log logging.Logger,
) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthHandler{
		userService:     userService,
		recoveryService: recoveryService,
		secret:          []byte(jwtSecret),
		tokenTTL:        tokenTTL,
		exposeOTP:       exposeOTP,
		log:             log,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Get("/me", handler.Me)

	r.Post("/otp", handler.RequestOTP)
	r.Post("/reset/otp", handler.ResetWithOTP)
	r.Get("/security-question", handler.SecurityQuestion)
	r.Post("/reset/security", handler.ResetWithSecurityQuestion)
}

// RequireAuth enforces JWT authentication and injects the subject into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.secret)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return requireAuth([]byte(jwtSecret))
}

// OptionalAuth injects the subject when a valid bearer token is present and
// lets anonymous requests through. A malformed or expired token is rejected.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			requireAuth(secret)(next).ServeHTTP(w, r)
		})
	}
}

// KnownSubject rejects a token whose user no longer exists, for example
// after a delete or an id replace. Requests without a subject pass through.
func KnownSubject(users *services.UserService, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userIDFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := users.Get(r.Context(), userID); err != nil {
				if errors.Is(err, services.ErrUserNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeServiceError(w, r, log, err, "failed to load user")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			subject, err := parseTokenSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.UserID == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, err := h.userService.Create(r.Context(), services.RegisterInput{
		UserID:           req.UserID,
		Username:         req.Username,
		Email:            req.Email,
		SecurityQuestion: strings.TrimSpace(req.SecurityQuestion),
		SecurityAnswer:   req.SecurityAnswer,
	}, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to create user")
		return
	}

	token, err := issueToken(user.UserID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user.Profile()})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.VerifyPassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrInvalidPassword):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, services.ErrNoPasswordSet):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			writeServiceError(w, r, h.log, err, "failed to authenticate")
		}
		return
	}

	token, err := issueToken(user.UserID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, UserID: user.UserID, Role: user.Role})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, user.Profile())
}

// RequestOTP opens a password reset window for the user. The code itself is
// only echoed back when the handler was built with exposeOTP.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "missing identifier")
		return
	}

	result, err := h.recoveryService.GenerateOTP(r.Context(), req.Identifier)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to generate otp")
		return
	}

	resp := OTPResponse{UserID: result.UserID, Expiry: result.Expiry, EmailSent: result.EmailSent}
	if h.exposeOTP {
		resp.OTP = result.OTP
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetWithOTP sets a new password after checking the reset code.
func (h *AuthHandler) ResetWithOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Identifier == "" || req.OTP == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if err := h.recoveryService.ResetWithOTP(r.Context(), req.Identifier, req.OTP, req.NewPassword); err != nil {
		writeServiceError(w, r, h.log, err, "failed to reset password")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password reset"})
}

// SecurityQuestion returns the question a user chose at registration.
func (h *AuthHandler) SecurityQuestion(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "missing identifier")
		return
	}

	question, err := h.recoveryService.SecurityQuestion(r.Context(), identifier)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to load security question")
		return
	}
	writeJSON(w, http.StatusOK, SecurityQuestionResponse{Question: question})
}

// ResetWithSecurityQuestion sets a new password after checking the answer.
func (h *AuthHandler) ResetWithSecurityQuestion(w http.ResponseWriter, r *http.Request) {
	var req SecurityResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Answer == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if err := h.recoveryService.ResetWithSecurityQuestion(r.Context(), req.Identifier, req.Answer, req.NewPassword); err != nil {
		writeServiceError(w, r, h.log, err, "failed to reset password")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password reset"})
}

type RegisterRequest struct {
	UserID           string `json:"user_id"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	Email            string `json:"email"`
	SecurityQuestion string `json:"security_question"`
	SecurityAnswer   string `json:"security_answer"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type AuthResponse struct {
	Token string        `json:"token"`
	User  types.Profile `json:"user"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type OTPRequest struct {
	Identifier string `json:"identifier"`
}

type OTPResponse struct {
	UserID    string          `json:"user_id"`
	OTP       string          `json:"otp,omitempty"`
	Expiry    types.Timestamp `json:"expiry"`
	EmailSent bool            `json:"email_sent"`
}

type OTPResetRequest struct {
	Identifier  string `json:"identifier"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type SecurityQuestionResponse struct {
	Question string `json:"question"`
}

type SecurityResetRequest struct {
	Identifier  string `json:"identifier"`
	Answer      string `json:"answer"`
	NewPassword string `json:"new_password"`
}

func issueToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
