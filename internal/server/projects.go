package server

import (
	"encoding/json"
	"io"
	"net/http"

	"annotator3d/pkg/domain"
)

type createProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addMemberRequest struct {
	UserID *int64 `json:"user_id"`
}

// handleProjects dispatches /v1/projects/, /v1/projects/{id}/ and the
// membership subresource /v1/projects/{id}/users/[{user_id}/].
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	segments := pathSegments(r, "/v1/projects")
	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			s.listProjects(w, r, user)
		case http.MethodPost:
			s.createProject(w, r, user)
		default:
			methodNotAllowed(w)
		}
	case 1:
		id, ok := parseID(segments[0])
		if !ok {
			notFound(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.retrieveProject(w, r, user, id)
		case http.MethodPut, http.MethodPatch:
			s.updateProject(w, r, user, id)
		case http.MethodDelete:
			s.destroyProject(w, r, user, id)
		default:
			methodNotAllowed(w)
		}
	case 2:
		id, ok := parseID(segments[0])
		if !ok || segments[1] != "users" {
			notFound(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.listProjectMembers(w, r, user, id)
		case http.MethodPost:
			s.addProjectMember(w, r, user, id)
		default:
			methodNotAllowed(w)
		}
	case 3:
		id, ok := parseID(segments[0])
		if !ok || segments[1] != "users" {
			notFound(w)
			return
		}
		memberID, ok := parseID(segments[2])
		if !ok {
			notFound(w)
			return
		}
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		s.removeProjectMember(w, r, user, id, memberID)
	default:
		notFound(w)
	}
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	userID, ok := queryID(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_filter", "user_id must be an integer.")
		return
	}
	views, err := s.app.RenderProjectList(user.ID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createProjectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	errs.requireString("name", req.Name, domain.ProjectNameMaxLength)
	if req.Description != nil {
		errs.checkMaxLength("description", *req.Description, domain.DescriptionMaxLength)
	}
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	p, err := s.app.CreateProject(user.ID, *req.Name, description)
	if err != nil {
		writeAppError(w, err)
		return
	}
	view, err := s.app.RenderProject(r.Context(), p.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) retrieveProject(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if _, err := s.app.GetProjectAuthorized(user.ID, id); err != nil {
		writeAppError(w, err)
		return
	}
	view, err := s.app.RenderProject(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	var req updateProjectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	if req.Name != nil {
		errs.checkString("name", *req.Name, domain.ProjectNameMaxLength)
	}
	if req.Description != nil {
		errs.checkMaxLength("description", *req.Description, domain.DescriptionMaxLength)
	}
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}
	if _, err := s.app.UpdateProject(user.ID, id, req.Name, req.Description); err != nil {
		writeAppError(w, err)
		return
	}
	view, err := s.app.RenderProject(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) destroyProject(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if err := s.app.DeleteProject(r.Context(), user.ID, id); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "project.destroy", "success", "user_id", user.ID, "project_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listProjectMembers(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	members, err := s.app.ListProjectMembers(user.ID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]domain.UserView, 0, len(members))
	for _, m := range members {
		views = append(views, m.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) addProjectMember(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	var req addMemberRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	errs.requireID("user_id", req.UserID)
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}
	if err := s.app.AddProjectMember(user.ID, id, *req.UserID); err != nil {
		writeAppError(w, err)
		return
	}
	member, err := s.app.GetUser(*req.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member.View())
}

func (s *Server) removeProjectMember(w http.ResponseWriter, r *http.Request, user domain.User, projectID, memberID int64) {
	if err := s.app.RemoveProjectMember(user.ID, projectID, memberID); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
