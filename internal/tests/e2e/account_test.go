//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codegenie/apiserver/config"
	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/logging"
	"github.com/codegenie/apiserver/internal/server"
	"github.com/codegenie/apiserver/internal/services"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	models := fakeModelServer()
	setEnv(models.URL)

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	models.Close()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountLifecycle(t *testing.T) {
	userID := fmt.Sprintf("user_%d", time.Now().UnixNano())
	password := "testpass123!"

	var registered struct {
		Token string `json:"token"`
	}
	status := call(t, http.MethodPost, "/auth/register", "", map[string]string{
		"user_id":           userID,
		"username":          "E2E " + userID,
		"password":          password,
		"security_question": "Favourite colour?",
		"security_answer":   "Blue",
	}, &registered)
	if status != http.StatusCreated {
		t.Fatalf("register status %d", status)
	}
	token := registered.Token

	var generated struct {
		Code string `json:"code"`
	}
	status = call(t, http.MethodPost, "/generate", token, map[string]string{
		"prompt":   "reverse a string",
		"language": "Go",
	}, &generated)
	if status != http.StatusOK {
		t.Fatalf("generate status %d", status)
	}
	if generated.Code != "func reverse() {}" {
		t.Fatalf("unexpected code: %q", generated.Code)
	}

	status = call(t, http.MethodPost, "/feedback", token, map[string]any{
		"query":  "reverse a string",
		"rating": 5,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("feedback status %d", status)
	}

	var stats struct {
		TotalQueries  int `json:"total_queries"`
		TotalFeedback int `json:"total_feedback"`
	}
	status = call(t, http.MethodGet, "/me/stats", token, nil, &stats)
	if status != http.StatusOK {
		t.Fatalf("stats status %d", status)
	}
	if stats.TotalQueries != 1 || stats.TotalFeedback != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	status = call(t, http.MethodPost, "/auth/reset/security", "", map[string]string{
		"identifier":   userID,
		"answer":       "blue",
		"new_password": "changed456!",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("reset status %d", status)
	}

	status = call(t, http.MethodPost, "/auth/login", "", map[string]string{
		"identifier": userID,
		"password":   password,
	}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: status %d", status)
	}
}

func TestAdminDashboard(t *testing.T) {
	adminID := fmt.Sprintf("admin_%d", time.Now().UnixNano())
	var registered struct {
		Token string `json:"token"`
	}
	status := call(t, http.MethodPost, "/auth/register", "", map[string]string{
		"user_id":  adminID,
		"username": "E2E Admin",
		"password": "adminpass123!",
	}, &registered)
	if status != http.StatusCreated {
		t.Fatalf("register status %d", status)
	}

	status = call(t, http.MethodGet, "/admin/stats", registered.Token, nil, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected forbidden before promotion, got %d", status)
	}

	if err := promoteUserToAdmin(adminID); err != nil {
		t.Fatalf("promote user: %v", err)
	}

	var stats struct {
		TotalUsers int `json:"total_users"`
	}
	status = call(t, http.MethodGet, "/admin/stats", registered.Token, nil, &stats)
	if status != http.StatusOK {
		t.Fatalf("stats status %d", status)
	}
	if stats.TotalUsers < 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("e2e")...)
	req, err := http.NewRequest(http.MethodPut, baseURL+"/me/avatar", bytes.NewReader(png))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+registered.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload avatar: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("upload avatar status %d", resp.StatusCode)
	}

	status = call(t, http.MethodGet, "/admin/users/"+adminID+"/avatar", registered.Token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("admin avatar status %d", status)
	}
}

// call sends a JSON request and decodes a JSON response into out when it
// is non-nil.
func call(t *testing.T, method, path, token string, in, out any) int {
	t.Helper()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode < 300 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v: %s", method, path, err, raw)
		}
	}
	return resp.StatusCode
}

func promoteUserToAdmin(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.LoadConfig()
	log := logging.Discard()
	stores, closeStores, err := server.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	users := services.NewUserService(stores.Users, stores.Activity, stores.History, stores.Feedback, log)
	_, err = users.PromoteToAdmin(ctx, userID)
	return err
}

func fakeModelServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"generated_text": "func reverse() {}"})
	}))
}

func waitForPostgres(ctx context.Context) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	cfg := config.LoadConfig()
	for {
		conn, err := db.OpenPostgres(ctx, cfg.Database)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setEnv(modelServerURL string) {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("STORE_BACKEND", "postgres")
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "codegenie")
	_ = os.Setenv("DB_PASSWORD", "codegenie")
	_ = os.Setenv("DB_NAME", "codegenie")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("LOCK_BACKEND", "redis")
	_ = os.Setenv("REDIS_ADDR", "localhost:6379")
	_ = os.Setenv("AVATAR_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "codegenie")
	_ = os.Setenv("MODEL_SERVER_URL", modelServerURL)
	_ = os.Setenv("LOG_LEVEL", "warn")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
