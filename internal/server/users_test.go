package server

import (
	"fmt"
	"net/http"
	"testing"
)

func TestUserListAndDetail(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup("alice")
	ts.register("bob")

	users := decodeList(t, ts.do(http.MethodGet, "/v1/users/", alice, nil))
	// The adopter account is provisioned at startup and listed too.
	names := map[string]int64{}
	for _, u := range users {
		names[u["username"].(string)] = entityID(t, u, "user_id")
	}
	for _, want := range []string{"alice", "bob", "ModelDataAdopter"} {
		if _, ok := names[want]; !ok {
			t.Errorf("user %s missing from list", want)
		}
	}

	// Detail view is self-only and includes the email address.
	resp := ts.do(http.MethodGet, fmt.Sprintf("/v1/users/%d/", names["alice"]), alice, nil)
	wantStatus(t, resp, http.StatusOK)
	detail := decodeJSON(t, resp)
	if detail["email"] != "alice@example.com" {
		t.Fatalf("email = %v", detail["email"])
	}

	resp = ts.do(http.MethodGet, fmt.Sprintf("/v1/users/%d/", names["bob"]), alice, nil)
	wantErrorCode(t, resp, http.StatusForbidden, "missing_permission")
}

func TestUserDeleteSelfOnly(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup("alice")
	bob := ts.signup("bob")

	users := decodeList(t, ts.do(http.MethodGet, "/v1/users/", alice, nil))
	ids := map[string]int64{}
	for _, u := range users {
		ids[u["username"].(string)] = entityID(t, u, "user_id")
	}

	resp := ts.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d/", ids["bob"]), alice, nil)
	wantErrorCode(t, resp, http.StatusForbidden, "missing_permission")

	resp = ts.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d/", ids["bob"]), bob, nil)
	wantStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()

	// The deleted account's token stops working.
	resp = ts.do(http.MethodGet, "/v1/users/", bob, nil)
	wantErrorCode(t, resp, http.StatusUnauthorized, "not_logged_in")
}
