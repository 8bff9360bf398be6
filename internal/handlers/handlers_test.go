package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/inference"
	"github.com/codegenie/apiserver/internal/lock"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/codegenie/apiserver/internal/storage"
	"github.com/codegenie/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var testPNG = append([]byte("\x89PNG\r\n\x1a\n"), []byte("pixels")...)

type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeModel) Complete(_ context.Context, _ inference.Model, prompt string, _ inference.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type testEnv struct {
	router   http.Handler
	users    *services.UserService
	recovery *services.RecoveryService
	model    *fakeModel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logging.Discard()

	backend, err := db.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	stores := store.New(backend, lock.NewLocalLocker(), log)
	_, err = stores.InitAll(ctx)
	require.NoError(t, err)

	objects, err := storage.NewLocalClient(t.TempDir())
	require.NoError(t, err)

	users := services.NewUserService(stores.Users, stores.Activity, stores.History, stores.Feedback, log)
	recovery := services.NewRecoveryService(stores.Users, nil, 10*time.Minute, log)
	activity := services.NewActivityService(stores.Activity, stores.History, stores.Feedback, log)
	dashboard := services.NewDashboardService(stores.Users, stores.Activity, stores.History, stores.Feedback)
	avatars := services.NewAvatarService(storage.NewStorage(objects), 64)

	model := &fakeModel{reply: "print('hi')"}
	gateway := inference.NewGateway(inference.NewCatalog(config.DefaultModels(), "http://models"), model, log)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	knownSubject := KnownSubject(users, log)
	GatewayRouter(r, NewGatewayHandler(gateway, activity, log), OptionalAuth(testSecret), knownSubject)
	FeedbackRouter(r, NewFeedbackHandler(activity, log), RequireAuth(testSecret), knownSubject)
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, NewAuthHandler(users, recovery, testSecret, time.Hour, true, log))
	})
	r.Route("/me", func(r chi.Router) {
		r.Use(RequireAuth(testSecret), knownSubject)
		MeRouter(r, NewMeHandler(dashboard, activity, avatars, log))
	})
	r.Route("/admin", func(r chi.Router) {
		AdminRouter(r, NewAdminHandler(users, dashboard, activity, avatars, log), RequireAuth(testSecret))
	})

	return &testEnv{router: r, users: users, recovery: recovery, model: model}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		payload = v
	default:
		var err error
		payload, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// createUser registers id with a password and returns a token for it.
func (e *testEnv) createUser(t *testing.T, id, password string) string {
	t.Helper()
	_, err := e.users.Create(context.Background(), services.RegisterInput{UserID: id, Username: id}, password)
	require.NoError(t, err)
	token, err := issueToken(id, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) createAdmin(t *testing.T, id string) string {
	t.Helper()
	token := e.createUser(t, id, "admin-pw")
	_, err := e.users.PromoteToAdmin(context.Background(), id)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, rec).Error
}

var errModelDown = errors.New("connection refused")
