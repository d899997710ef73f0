package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"annotator3d/internal/app"
	"annotator3d/pkg/storage"
	"annotator3d/pkg/store"
)

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/v1/register/", "", map[string]string{
		"username": "",
		"email":    "not-an-email",
		"password": "123456789",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	if body["code"] != "validation_errors" {
		t.Fatalf("code = %v", body["code"])
	}
	if body["containsErrorList"] != true {
		t.Fatalf("containsErrorList = %v", body["containsErrorList"])
	}
	errs, ok := body["errors"].(map[string]any)
	if !ok {
		t.Fatalf("errors missing: %v", body)
	}
	for _, field := range []string{"username", "email", "password"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("no error entry for %s", field)
		}
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice")

	resp := ts.do(http.MethodPost, "/v1/register/", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "longenough",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeJSON(t, resp)
	errs, _ := body["errors"].(map[string]any)
	if _, ok := errs["username"]; !ok {
		t.Fatalf("expected username error, got %v", body)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.register("alice")

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/login/", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.SetBasicAuth("alice", "wrongpassword")
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	wantErrorCode(t, resp, http.StatusUnauthorized, "invalid_credentials")

	// Missing credentials entirely.
	resp = ts.do(http.MethodPost, "/v1/login/", "", nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, "not_authenticated")
}

func TestLogoutInvalidatesToken(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signup("alice")

	resp := ts.do(http.MethodPost, "/v1/logout/", token, nil)
	wantStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = ts.do(http.MethodGet, "/v1/projects/", token, nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, "not_logged_in")
}

func TestRegisterRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:        store.NewMemoryStore(),
		Sessions:     sessions,
		Objects:      storage.NewMemoryStore(),
		MaxFileBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, RedisClient: client, RegisterRateLimitPerMinute: 2})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	ts := &testServer{t: t, srv: srv, app: a}

	ts.register("user1")
	ts.register("user2")

	resp := ts.do(http.MethodPost, "/v1/register/", "", map[string]string{
		"username": "user3",
		"email":    "user3@example.com",
		"password": "longenough",
	})
	wantErrorCode(t, resp, http.StatusTooManyRequests, "throttled")
}
