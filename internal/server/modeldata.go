package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"annotator3d/internal/app"
	"annotator3d/pkg/domain"
)

type createModelDataRequest struct {
	Name           *string `json:"name"`
	ModelType      *string `json:"modelType"`
	AnnotationType *string `json:"annotationType"`
	ProjectID      *int64  `json:"project_id"`
}

type updateModelDataRequest struct {
	Name *string `json:"name"`
}

type lockRequest struct {
	Lock   *bool  `json:"lock"`
	UserID *int64 `json:"user_id"`
}

// handleModelData dispatches /v1/modelData/, /v1/modelData/{id}/ and the
// lock/baseFile/annotationFile actions.
func (s *Server) handleModelData(w http.ResponseWriter, r *http.Request, user domain.User) {
	segments := pathSegments(r, "/v1/modelData")
	switch len(segments) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			s.listModelData(w, r, user)
		case http.MethodPost:
			s.createModelData(w, r, user)
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
			s.retrieveModelData(w, r, user, id)
		case http.MethodPut, http.MethodPatch:
			s.updateModelData(w, r, user, id)
		case http.MethodDelete:
			s.destroyModelData(w, r, user, id)
		default:
			methodNotAllowed(w)
		}
	case 2:
		id, ok := parseID(segments[0])
		if !ok {
			notFound(w)
			return
		}
		switch segments[1] {
		case "lock":
			if r.Method != http.MethodPut {
				methodNotAllowed(w)
				return
			}
			s.lockModelData(w, r, user, id)
		case "baseFile":
			s.handleFileSlot(w, r, user, id, domain.BaseFileName)
		case "annotationFile":
			s.handleFileSlot(w, r, user, id, domain.AnnotationFileName)
		default:
			notFound(w)
		}
	default:
		notFound(w)
	}
}

func (s *Server) listModelData(w http.ResponseWriter, r *http.Request, user domain.User) {
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
	views, err := s.app.RenderModelDataList(r.Context(), user.ID, projectID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) createModelData(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createModelDataRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	errs.requireString("name", req.Name, domain.ModelDataNameMaxLength)
	errs.requireString("modelType", req.ModelType, domain.ModelTypeMaxLength)
	errs.requireString("annotationType", req.AnnotationType, domain.AnnotationTypeMaxLength)
	errs.requireID("project_id", req.ProjectID)
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}

	md, err := s.app.CreateModelData(user.ID, domain.ModelData{
		Name:           *req.Name,
		ModelType:      *req.ModelType,
		AnnotationType: *req.AnnotationType,
		ProjectID:      *req.ProjectID,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	view, err := s.app.RenderModelData(r.Context(), md.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) retrieveModelData(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if _, err := s.app.GetModelDataAuthorized(user.ID, id); err != nil {
		writeAppError(w, err)
		return
	}
	view, err := s.app.RenderModelData(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateModelData(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	var req updateModelDataRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	if req.Name != nil {
		errs.checkString("name", *req.Name, domain.ModelDataNameMaxLength)
	}
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}
	if _, err := s.app.UpdateModelDataName(user.ID, id, req.Name); err != nil {
		writeAppError(w, err)
		return
	}
	view, err := s.app.RenderModelData(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) destroyModelData(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if err := s.app.DeleteModelData(r.Context(), user.ID, id); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "modeldata.destroy", "success", "user_id", user.ID, "modeldata_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lockModelData(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	var req lockRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body.")
		return
	}
	errs := fieldErrors{}
	if req.Lock == nil {
		errs.add("lock", "This field is required.", "required")
	}
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}
	if _, err := s.app.SetLock(id, user.ID, *req.Lock, req.UserID); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "modeldata.lock", "success", "user_id", user.ID, "modeldata_id", id, "lock", *req.Lock)
	view, err := s.app.RenderModelData(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleFileSlot serves the upload and download actions of one file slot.
func (s *Server) handleFileSlot(w http.ResponseWriter, r *http.Request, user domain.User, id int64, slot string) {
	switch r.Method {
	case http.MethodPut:
		s.uploadFile(w, r, user, id, slot)
	case http.MethodGet:
		s.downloadFile(w, r, user, id, slot)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request, user domain.User, id int64, slot string) {
	// Slack above the limit covers the multipart framing; a body that still
	// trips the cap is an oversized file, not a malformed form.
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxFileBytes()+(32<<10))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAppError(w, app.ErrFileTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form", "Invalid multipart form data.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidationErrors(w, fieldErrors{"file": {{Message: "This field is required.", Code: "required"}}})
		return
	}
	defer file.Close()

	format := r.FormValue("fileFormat")
	errs := fieldErrors{}
	errs.checkMaxLength("fileFormat", format, domain.FileFormatMaxLength)
	if !errs.empty() {
		writeValidationErrors(w, errs)
		return
	}

	up := app.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Format:   format,
		Body:     file,
	}
	var md domain.ModelData
	if slot == domain.BaseFileName {
		md, err = s.app.UploadBaseFile(r.Context(), user.ID, id, up)
	} else {
		md, err = s.app.UploadAnnotationFile(r.Context(), user.ID, id, up)
	}
	if err != nil {
		s.audit(r, "modeldata.upload", "fail", "user_id", user.ID, "modeldata_id", id, "slot", slot, "reason", err.Error())
		writeAppError(w, err)
		return
	}
	s.audit(r, "modeldata.upload", "success", "user_id", user.ID, "modeldata_id", id, "slot", slot)
	view, err := s.app.RenderModelData(r.Context(), md.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request, user domain.User, id int64, slot string) {
	var (
		rc   io.ReadCloser
		size int64
		err  error
	)
	if slot == domain.BaseFileName {
		rc, size, err = s.app.OpenBaseFile(r.Context(), user.ID, id)
	} else {
		rc, size, err = s.app.OpenAnnotationFile(r.Context(), user.ID, id)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slot))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
