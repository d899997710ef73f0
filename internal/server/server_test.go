package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"annotator3d/internal/app"
	"annotator3d/pkg/storage"
	"annotator3d/pkg/store"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	app *app.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
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
	s, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, app: a}
}

// do issues a JSON request. A non-empty token is sent as a bearer token.
func (ts *testServer) do(method, path, token string, body any) *http.Response {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (ts *testServer) register(name string) {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/v1/register/", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "longenough",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		ts.t.Fatalf("register %s: status %d", name, resp.StatusCode)
	}
}

func (ts *testServer) login(name, password string) string {
	ts.t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/login/", nil)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	req.SetBasicAuth(name, password)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("login %s: %v", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ts.t.Fatalf("login %s: status %d", name, resp.StatusCode)
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		ts.t.Fatalf("decode session: %v", err)
	}
	return session.Token
}

// signup registers a user and returns a fresh token.
func (ts *testServer) signup(name string) string {
	ts.t.Helper()
	ts.register(name)
	return ts.login(name, "longenough")
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func decodeList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, raw)
	}
}

func wantErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	body := decodeJSON(t, resp)
	if body["code"] != code {
		t.Fatalf("code = %v, want %q", body["code"], code)
	}
}

// entityID reads the typed id field of a wire view ("project_id",
// "modelData_id", "user_id", "label_id").
func entityID(t *testing.T, payload map[string]any, key string) int64 {
	t.Helper()
	raw, ok := payload[key].(float64)
	if !ok {
		t.Fatalf("payload has no numeric %s: %v", key, payload)
	}
	return int64(raw)
}

func (ts *testServer) createProject(token, name string) int64 {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/v1/projects/", token, map[string]string{
		"name": name, "description": "test project",
	})
	wantStatus(ts.t, resp, http.StatusCreated)
	return entityID(ts.t, decodeJSON(ts.t, resp), "project_id")
}

func (ts *testServer) createModelData(token string, projectID int64) int64 {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/v1/modelData/", token, map[string]any{
		"name":           "bridge",
		"modelType":      "pointcloud",
		"annotationType": "semantic",
		"project_id":     projectID,
	})
	wantStatus(ts.t, resp, http.StatusCreated)
	return entityID(ts.t, decodeJSON(ts.t, resp), "modelData_id")
}

// uploadFile sends a multipart PUT to the given file slot.
func (ts *testServer) uploadFile(token string, modelDataID int64, slot, filename, content string) *http.Response {
	ts.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		ts.t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		ts.t.Fatalf("write form file: %v", err)
	}
	if err := mw.WriteField("fileFormat", "zip"); err != nil {
		ts.t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		ts.t.Fatalf("close multipart writer: %v", err)
	}
	path := fmt.Sprintf("/v1/modelData/%d/%s", modelDataID, slot)
	req, err := http.NewRequest(http.MethodPut, ts.srv.URL+path, &buf)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(http.MethodGet, "/healthz", "", nil)
	wantStatus(t, resp, http.StatusOK)
	body := decodeJSON(t, resp)
	if body["status"] != "ok" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestAuthenticationRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/v1/projects/", "", nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, "not_authenticated")

	resp = ts.do(http.MethodGet, "/v1/projects/", "garbage-token", nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, "not_logged_in")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signup("alice")

	resp := ts.do(http.MethodGet, "/v1/projects/1/bogus/extra/", token, nil)
	wantErrorCode(t, resp, http.StatusNotFound, "does_not_exist")

	resp = ts.do(http.MethodDelete, "/v1/projects/", token, nil)
	wantErrorCode(t, resp, http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestSecurityHeadersApplied(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(http.MethodGet, "/healthz", "", nil)
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
}
