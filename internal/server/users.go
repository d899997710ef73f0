package server

import (
	"net/http"

	"annotator3d/pkg/domain"
)

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, user domain.User) {
	segments := pathSegments(r, "/v1/users")
	switch len(segments) {
	case 0:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.listUsers(w)
	case 1:
		id, ok := parseID(segments[0])
		if !ok {
			notFound(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.retrieveUser(w, user, id)
		case http.MethodDelete:
			s.destroyUser(w, r, user, id)
		default:
			methodNotAllowed(w)
		}
	default:
		notFound(w)
	}
}

func (s *Server) listUsers(w http.ResponseWriter) {
	users, err := s.app.ListUsers()
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// Account details and deletion are limited to the account itself.
func (s *Server) retrieveUser(w http.ResponseWriter, user domain.User, id int64) {
	if id != user.ID {
		writeError(w, http.StatusForbidden, "missing_permission", "You do not have permission to perform this action.")
		return
	}
	u, err := s.app.GetUser(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.DetailView())
}

func (s *Server) destroyUser(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if id != user.ID {
		writeError(w, http.StatusForbidden, "missing_permission", "You do not have permission to perform this action.")
		return
	}
	if err := s.app.DeleteUser(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "user.destroy", "success", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}
