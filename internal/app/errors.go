package app

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrMissingPermission indicates the caller lacks the required capability.
	ErrMissingPermission = errors.New("missing permission")
	// ErrNotProjectMember indicates a lock target user who is not part of the
	// project.
	ErrNotProjectMember = errors.New("the given user has to be part of the project")
	// ErrAlreadyLocked indicates a lock acquisition on a held lock.
	ErrAlreadyLocked = errors.New("model data already locked")
	// ErrLocked indicates a mutation attempt by someone other than the holder.
	ErrLocked = errors.New("model data locked by another user")
	// ErrBaseFileExists indicates a second base file upload. Base files are
	// write-once.
	ErrBaseFileExists = errors.New("base file already exists")
	// ErrFileTooLarge indicates an upload at or above the configured maximum.
	ErrFileTooLarge = errors.New("file too large")
	// ErrWrongFileName indicates an upload whose filename does not match the
	// slot's expected name.
	ErrWrongFileName = errors.New("wrong file name")
	// ErrFileSizeUnknown indicates an upload with no declared size.
	ErrFileSizeUnknown = errors.New("file size unknown")
	// ErrTryAgainLater indicates a transient blob inconsistency that outlived
	// the bounded retry.
	ErrTryAgainLater = errors.New("try again later")
	// ErrInvalidCredentials indicates a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
