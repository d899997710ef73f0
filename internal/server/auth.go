package server

import (
	"encoding/json"
	"io"
	"net/http"

	"annotator3d/pkg/domain"
)

type registerRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "Too many registration attempts.") {
		s.audit(r, "auth.register", "rate_limited")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}

	errs := fieldErrors{}
	errs.requireString("username", req.Username, domain.UsernameMaxLength)
	errs.requireString("email", req.Email, domain.EmailMaxLength)
	if req.Email != nil {
		errs.checkEmail("email", *req.Email)
	}
	if req.Password == nil {
		errs.add("password", "This field is required.", "required")
	} else {
		errs.checkPassword("password", *req.Password)
	}
	if !errs.empty() {
		s.audit(r, "auth.register", "fail", "reason", "validation")
		writeValidationErrors(w, errs)
		return
	}

	user, err := s.app.Register(*req.Username, *req.Email, *req.Password)
	if err != nil {
		s.audit(r, "auth.register", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user.DetailView())
}

// handleLogin takes HTTP Basic credentials and returns a bearer token with
// its expiry. Any previous session of the user stops working.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts.") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		s.audit(r, "auth.login", "fail", "reason", "missing_basic_auth")
		writeError(w, http.StatusUnauthorized, "not_authenticated", "Authentication credentials were not provided.")
		return
	}
	sess, err := s.app.Login(username, password)
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", sess.UserID)
	writeJSON(w, http.StatusOK, domain.SessionView{Expiry: sess.Expiry, Token: sess.Token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token, user.ID); err != nil {
		s.audit(r, "auth.logout", "fail", "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "auth.logout", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}
