package domain

import "time"

// Persistence entities. Wire representations live in views.go; these carry no
// JSON tags on purpose so handlers cannot leak password hashes or storage keys.

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Project is a collaborative workspace with one owner and many members. The
// aggregate loaded by the store includes members, model data, and labels.
type Project struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	Owner       User
	Members     []User
	ModelData   []ModelData
	Labels      []Label
}

type Label struct {
	ID              int64
	Name            string
	AnnotationClass int
	Color           int
	ProjectID       int64
}

// File is a stored blob plus metadata. Files carry no back-reference to the
// ModelData that points at them; the file lifecycle manager keeps the
// baseFile/annotationFile pointers consistent.
type File struct {
	ID         int64
	StorageKey string
	FileFormat string
	UploadDate time.Time
	UploadedBy *User
}

// ModelData is an annotatable 3D asset record. LockedBy is the single user
// currently permitted to replace the annotation file; nil means unlocked.
type ModelData struct {
	ID             int64
	Name           string
	ModelType      string
	AnnotationType string
	ProjectID      int64
	Owner          User
	LockedBy       *User
	BaseFile       *File
	AnnotationFile *File
}
