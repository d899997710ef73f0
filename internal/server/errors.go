package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"annotator3d/internal/app"
	"annotator3d/pkg/store"
)

// errorBody is the envelope every error response uses. containsErrorList
// distinguishes the per-field validation shape from single errors.
type errorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	ContainsErrorList bool   `json:"containsErrorList"`
}

type validationBody struct {
	errorBody
	Errors fieldErrors `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeValidationErrors(w http.ResponseWriter, errs fieldErrors) {
	writeJSON(w, http.StatusBadRequest, validationBody{
		errorBody: errorBody{
			Code:              "validation_errors",
			Message:           "Some fields contain invalid values. See 'errors' for more info.",
			ContainsErrorList: true,
		},
		Errors: errs,
	})
}

// writeAppError maps application sentinels to the wire envelope.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "does_not_exist", "Not found.")
	case errors.Is(err, app.ErrNotProjectMember):
		writeError(w, http.StatusForbidden, "missing_permission", "The given user has to be part of the project.")
	case errors.Is(err, app.ErrMissingPermission):
		writeError(w, http.StatusForbidden, "missing_permission", "You do not have permission to perform this action.")
	case errors.Is(err, app.ErrAlreadyLocked):
		writeError(w, http.StatusForbidden, "modeldata_locked", "The model data is already locked.")
	case errors.Is(err, app.ErrLocked):
		writeError(w, http.StatusForbidden, "modeldata_locked", "The model data is locked by another user.")
	case errors.Is(err, app.ErrBaseFileExists):
		writeError(w, http.StatusForbidden, "basefile_already_exists", "A base file already exists and cannot be replaced.")
	case errors.Is(err, app.ErrFileTooLarge):
		writeError(w, http.StatusBadRequest, "too_large", "The uploaded file exceeds the size limit.")
	case errors.Is(err, app.ErrWrongFileName):
		writeError(w, http.StatusBadRequest, "wrong_name", "The uploaded file has the wrong name.")
	case errors.Is(err, app.ErrFileSizeUnknown):
		writeError(w, http.StatusBadRequest, "size_unknown", "The uploaded file reports no size.")
	case errors.Is(err, app.ErrTryAgainLater):
		writeError(w, http.StatusTooEarly, "try_again_later", "Resource temporarily inconsistent, try again later.")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password.")
	case errors.Is(err, store.ErrUsernameTaken):
		writeValidationErrors(w, fieldErrors{
			"username": {{Message: "A user with that username already exists.", Code: "unique"}},
		})
	case errors.Is(err, store.ErrAnnotationClassTaken):
		writeError(w, http.StatusBadRequest, "annotationclass_not_unique", "The annotation class is already used in this project.")
	default:
		slog.Error("internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error.")
	}
}
