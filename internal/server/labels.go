package server

import (
	"encoding/json"
	"io"
	"net/http"

	"annotator3d/pkg/domain"
)

type createLabelRequest struct {
	Name            *string `json:"name"`
	AnnotationClass *int    `json:"annotationClass"`
	Color           *int    `json:"color"`
	ProjectID       *int64  `json:"project_id"`
}

type updateLabelRequest struct {
	Name  *string `json:"name"`
	Color *int    `json:"color"`
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request, user domain.User) {
	segments := pathSegments(r, "/v1/labels")
	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			s.listLabels(w, r, user)
		case http.MethodPost:
			s.createLabel(w, r, user)
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
			s.retrieveLabel(w, user, id)
		case http.MethodPut, http.MethodPatch:
			s.updateLabel(w, r, user, id)
		case http.MethodDelete:
			s.destroyLabel(w, r, user, id)
		default:
			methodNotAllowed(w)
		}
	default:
		notFound(w)
	}
}

func (s *Server) listLabels(w http.ResponseWriter, r *http.Request, user domain.User) {
	projectID, ok := queryID(r, "project_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_filter", "project_id must be an integer.")
		return
	}
	userID, ok := queryID(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_filter", "user_id must be an integer.")
		return
	}
	labels, err := s.app.ListLabels(user.ID, projectID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := make([]domain.LabelView, 0, len(labels))
	for _, l := range labels {
		views = append(views, l.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) createLabel(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createLabelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	errs.requireString("name", req.Name, domain.LabelNameMaxLength)
	errs.requireInt("annotationClass", req.AnnotationClass)
	errs.requireInt("color", req.Color)
	errs.requireID("project_id", req.ProjectID)
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}

	label, err := s.app.CreateLabel(user.ID, domain.Label{
		Name:            *req.Name,
		AnnotationClass: *req.AnnotationClass,
		Color:           *req.Color,
		ProjectID:       *req.ProjectID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, label.View())
}

func (s *Server) retrieveLabel(w http.ResponseWriter, user domain.User, id int64) {
	label, err := s.app.GetLabelAuthorized(user.ID, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, label.View())
}

func (s *Server) updateLabel(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	var req updateLabelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	if req.Name != nil {
		errs.checkString("name", *req.Name, domain.LabelNameMaxLength)
	}
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}
	label, err := s.app.UpdateLabel(user.ID, id, req.Name, req.Color)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, label.View())
}

func (s *Server) destroyLabel(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if err := s.app.DeleteLabel(user.ID, id); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "label.destroy", "success", "user_id", user.ID, "label_id", id)
	w.WriteHeader(http.StatusNoContent)
}
