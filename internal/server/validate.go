package server

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"annotator3d/pkg/auth"
)

// fieldError is one violation on one field.
type fieldError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// fieldErrors collects violations per field, in submission order of checks.
type fieldErrors map[string][]fieldError

func (fe fieldErrors) add(field, message, code string) {
	fe[field] = append(fe[field], fieldError{Message: message, Code: code})
}

func (fe fieldErrors) empty() bool {
	return len(fe) == 0
}

// requireString checks presence, non-blankness and the length cap of a
// required string field.
func (fe fieldErrors) requireString(field string, value *string, maxLen int) {
	if value == nil {
		fe.add(field, "This field is required.", "required")
		return
	}
	fe.checkString(field, *value, maxLen)
}

// checkString validates a present string value.
func (fe fieldErrors) checkString(field, value string, maxLen int) {
	if strings.TrimSpace(value) == "" {
		fe.add(field, "This field may not be blank.", "blank")
		return
	}
	if len(value) > maxLen {
		fe.add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen), "max_length")
	}
}

// checkMaxLength validates only the length cap; blank values pass.
func (fe fieldErrors) checkMaxLength(field, value string, maxLen int) {
	if len(value) > maxLen {
		fe.add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen), "max_length")
	}
}

// requireInt checks presence of a required integer field.
func (fe fieldErrors) requireInt(field string, value *int) {
	if value == nil {
		fe.add(field, "This field is required.", "required")
	}
}

func (fe fieldErrors) requireID(field string, value *int64) {
	if value == nil {
		fe.add(field, "This field is required.", "required")
	}
}

// checkEmail validates an email address format.
func (fe fieldErrors) checkEmail(field, value string) {
	if _, err := mail.ParseAddress(value); err != nil {
		fe.add(field, "Enter a valid email address.", "invalid")
	}
}

// checkPassword applies the registration password policy.
func (fe fieldErrors) checkPassword(field, value string) {
	switch err := auth.ValidatePassword(value); {
	case errors.Is(err, auth.ErrPasswordTooShort):
		fe.add(field, "This password is too short. It must contain at least 8 characters.", "password_too_short")
	case errors.Is(err, auth.ErrPasswordNumeric):
		fe.add(field, "This password is entirely numeric.", "password_entirely_numeric")
	}
}
