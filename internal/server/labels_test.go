package server

import (
	"fmt"
	"net/http"
	"testing"
)

func (ts *testServer) createLabel(token string, projectID int64, name string, class int) *http.Response {
	ts.t.Helper()
	return ts.do(http.MethodPost, "/v1/labels/", token, map[string]any{
		"name":            name,
		"annotationClass": class,
		"color":           0xFF0000,
		"project_id":      projectID,
	})
}

func TestLabelLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signup("alice")
	projectID := ts.createProject(token, "scan")

	resp := ts.createLabel(token, projectID, "tree", 1)
	wantStatus(t, resp, http.StatusCreated)
	created := decodeJSON(t, resp)
	if created["annotationClass"] != float64(1) {
		t.Fatalf("annotationClass = %v", created["annotationClass"])
	}
	id := entityID(t, created, "label_id")

	resp = ts.do(http.MethodPatch, fmt.Sprintf("/v1/labels/%d/", id), token, map[string]any{"color": 0x00FF00})
	wantStatus(t, resp, http.StatusOK)
	updated := decodeJSON(t, resp)
	if updated["color"] != float64(0x00FF00) || updated["name"] != "tree" {
		t.Fatalf("partial update wrong: %v", updated)
	}

	resp = ts.do(http.MethodDelete, fmt.Sprintf("/v1/labels/%d/", id), token, nil)
	wantStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	resp = ts.do(http.MethodGet, fmt.Sprintf("/v1/labels/%d/", id), token, nil)
	wantErrorCode(t, resp, http.StatusNotFound, "does_not_exist")
}

func TestLabelAnnotationClassUnique(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signup("alice")
	projectID := ts.createProject(token, "scan")

	resp := ts.createLabel(token, projectID, "tree", 1)
	wantStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = ts.createLabel(token, projectID, "car", 1)
	wantErrorCode(t, resp, http.StatusBadRequest, "annotationclass_not_unique")

	// The same class is fine in another project.
	otherID := ts.createProject(token, "other")
	resp = ts.createLabel(token, otherID, "car", 1)
	wantStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

func TestLabelListByProject(t *testing.T) {
	ts := newTestServer(t)
	token := ts.signup("alice")
	projectID := ts.createProject(token, "scan")
	for i := 1; i <= 3; i++ {
		resp := ts.createLabel(token, projectID, fmt.Sprintf("label-%d", i), i)
		wantStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}

	resp := ts.do(http.MethodGet, fmt.Sprintf("/v1/labels/?project_id=%d", projectID), token, nil)
	wantStatus(t, resp, http.StatusOK)
	labels := decodeList(t, resp)
	if len(labels) != 3 {
		t.Fatalf("len(labels) = %d, want 3", len(labels))
	}

	// Non-members cannot list a project's labels.
	outsider := ts.signup("outsider")
	resp = ts.do(http.MethodGet, fmt.Sprintf("/v1/labels/?project_id=%d", projectID), outsider, nil)
	wantErrorCode(t, resp, http.StatusForbidden, "missing_permission")
}
