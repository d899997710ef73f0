package store

import (
	"errors"
	"time"

	"annotator3d/pkg/domain"
)

var (
	// ErrUsernameTaken is returned when registering a username that exists.
	ErrUsernameTaken = errors.New("username already used")
	// ErrAnnotationClassTaken is returned when a label's annotation class is
	// already used within the same project.
	ErrAnnotationClassTaken = errors.New("annotation class already used in project")
)

// Store defines persistence for users, projects, labels, model data and file
// records. Implementations must keep multi-row mutations transactional.
type Store interface {
	// users
	CreateUser(u domain.User) (domain.User, error)
	GetUserByID(id int64) (domain.User, bool, error)
	GetUserByUsername(username string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	// DeleteUser removes the user row after reassigning their model data to
	// the adopter, clearing locks they hold, nulling uploader references and
	// removing project memberships. Owned projects must be deleted first by
	// the caller so file blobs can be cleaned up.
	DeleteUser(id int64, adopterID int64) error

	// projects
	CreateProject(p domain.Project) (domain.Project, error)
	GetProject(id int64) (domain.Project, bool, error)
	ListProjectsForUser(userID int64) ([]domain.Project, error)
	ListProjectsOwnedBy(userID int64) ([]domain.Project, error)
	UpdateProject(id int64, name, description string) error
	DeleteProject(id int64) error

	// membership
	AddProjectMember(projectID, userID int64) error
	RemoveProjectMember(projectID, userID int64) error

	// labels
	CreateLabel(l domain.Label) (domain.Label, error)
	GetLabel(id int64) (domain.Label, bool, error)
	ListLabels(projectID int64) ([]domain.Label, error)
	ListLabelsForUser(userID int64) ([]domain.Label, error)
	UpdateLabel(id int64, name string, color int) error
	DeleteLabel(id int64) error

	// model data
	CreateModelData(md domain.ModelData) (domain.ModelData, error)
	GetModelData(id int64) (domain.ModelData, bool, error)
	ListModelData(projectID int64) ([]domain.ModelData, error)
	ListModelDataForUser(userID int64) ([]domain.ModelData, error)
	UpdateModelDataName(id int64, name string) error
	DeleteModelData(id int64) error
	SetBaseFile(modelDataID, fileID int64) error
	SetAnnotationFile(modelDataID, fileID int64) error

	// locking. AcquireLock is a compare-and-swap: it only succeeds when the
	// lock column is currently NULL, so two concurrent acquires cannot both win.
	AcquireLock(modelDataID, userID int64) (bool, error)
	ClearLock(modelDataID int64) error
	ClearLocksHeldBy(userID int64) error

	// file records
	CreateFile(f domain.File) (domain.File, error)
	UpdateFile(f domain.File) error
	DeleteFile(id int64) error
}

// Session is an issued bearer token bound to a user until expiry.
type Session struct {
	Token  string
	UserID int64
	Expiry time.Time
}

// SessionStore issues and validates bearer tokens.
type SessionStore interface {
	NewSession(userID int64) (Session, error)
	GetUserIDByToken(token string) (int64, bool, error)
	DeleteSession(token string) error
	// DeleteSessionsForUser invalidates every session of the user. Login uses
	// it to enforce a single active session.
	DeleteSessionsForUser(userID int64) error
}
