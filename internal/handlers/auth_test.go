package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/codegenie/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		UserID:   "u1",
		Username: "Ann",
		Password: "secret",
		Email:    "ann@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[AuthResponse](t, rec)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "u1", registered.User.UserID)
	assert.True(t, registered.User.HasPassword)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{UserID: "u1", Username: "Other", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "ann", Password: "secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[LoginResponse](t, rec)
	assert.Equal(t, "u1", login.UserID)
	assert.Equal(t, types.RoleUser, login.Role)

	rec = env.do(t, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[types.Profile](t, rec)
	assert.Equal(t, "Ann", me.Username)
	assert.Equal(t, 2, me.TotalLogins)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{UserID: "u1", Username: "Ann"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/register", "", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "secret")

	tests := []struct {
		name   string
		req    LoginRequest
		status int
	}{
		{name: "wrong password", req: LoginRequest{Identifier: "u1", Password: "nope"}, status: http.StatusUnauthorized},
		{name: "unknown user", req: LoginRequest{Identifier: "ghost", Password: "secret"}, status: http.StatusUnauthorized},
		{name: "missing fields", req: LoginRequest{Identifier: "u1"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/auth/login", "", tt.req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestLogin_NoPasswordSet(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.users.Register(t.Context(), services.RegisterInput{UserID: "u1", Username: "Ann"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "u1", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, services.ErrNoPasswordSet.Error(), errorMessage(t, rec))
}

func TestRequireAuth_RejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "pw")

	expired, err := issueToken("u1", []byte(testSecret), -time.Minute)
	require.NoError(t, err)
	forged, err := issueToken("u1", []byte("other-secret"), time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{"missing": "", "expired": expired, "forged": forged, "garbage": "abc"} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/auth/me", token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestOTPReset(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "old")

	rec := env.do(t, http.MethodPost, "/auth/otp", "", OTPRequest{Identifier: "u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	otp := decode[OTPResponse](t, rec)
	assert.Len(t, otp.OTP, 6)
	assert.False(t, otp.EmailSent)

	rec = env.do(t, http.MethodPost, "/auth/reset/otp", "", OTPResetRequest{Identifier: "u1", OTP: "000000", NewPassword: "new"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, services.ErrInvalidOTP.Error(), errorMessage(t, rec))

	rec = env.do(t, http.MethodPost, "/auth/reset/otp", "", OTPResetRequest{Identifier: "u1", OTP: otp.OTP, NewPassword: "new"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/auth/reset/otp", "", OTPResetRequest{Identifier: "u1", OTP: otp.OTP, NewPassword: "again"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "code is single-use")

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "u1", Password: "new"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOTP_CodeHiddenUnlessExposed(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "old")

	r := chi.NewRouter()
	AuthRouter(r, NewAuthHandler(env.users, env.recovery, testSecret, time.Hour, false, logging.Discard()))
	req := httptest.NewRequest(http.MethodPost, "/otp", strings.NewReader(`{"identifier":"u1"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"otp"`)
	resp := decode[OTPResponse](t, rec)
	assert.Equal(t, "u1", resp.UserID)
	assert.False(t, resp.EmailSent)

	user, err := env.users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, user.PasswordResetOTP, 6, "code is still stored for the mailed reset")
}

func TestOTP_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/auth/otp", "", OTPRequest{Identifier: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSecurityQuestionReset(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		UserID:           "u1",
		Username:         "Ann",
		Password:         "old",
		SecurityQuestion: "First pet?",
		SecurityAnswer:   "Rex",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/security-question?identifier=Ann", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "First pet?", decode[SecurityQuestionResponse](t, rec).Question)

	rec = env.do(t, http.MethodPost, "/auth/reset/security", "", SecurityResetRequest{Identifier: "u1", Answer: "Tom", NewPassword: "new"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/reset/security", "", SecurityResetRequest{Identifier: "u1", Answer: " rex ", NewPassword: "new"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Identifier: "u1", Password: "new"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityQuestion_NoneSet(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "u1", "pw")

	rec := env.do(t, http.MethodGet, "/auth/security-question?identifier=u1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/security-question", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
