package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"annotator3d/internal/util"
	"annotator3d/pkg/auth"
	"annotator3d/pkg/domain"
	"annotator3d/pkg/storage"
	"annotator3d/pkg/store"
)

// Config holds the collaborators and settings the application needs.
type Config struct {
	Store           store.Store
	Sessions        store.SessionStore
	Objects         storage.ObjectStore
	AdopterUsername string
	MaxFileBytes    int64
}

// App is the core application service. It owns access control, the ModelData
// lock state machine and the file lifecycle, and composes them for the HTTP
// layer.
type App struct {
	store        store.Store
	sessions     store.SessionStore
	objects      storage.ObjectStore
	adopterID    int64
	maxFileBytes int64
}

const defaultMaxFileBytes = 512 << 20

// New wires the application and provisions the adopter account, the sentinel
// user that inherits ModelData ownership when the real owner is deleted.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil || cfg.Sessions == nil || cfg.Objects == nil {
		return nil, errors.New("store, sessions and objects are required")
	}
	if cfg.AdopterUsername == "" {
		cfg.AdopterUsername = "ModelDataAdopter"
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}

	a := &App{
		store:        cfg.Store,
		sessions:     cfg.Sessions,
		objects:      cfg.Objects,
		maxFileBytes: cfg.MaxFileBytes,
	}

	adopter, found, err := cfg.Store.GetUserByUsername(cfg.AdopterUsername)
	if err != nil {
		return nil, fmt.Errorf("look up adopter account: %w", err)
	}
	if !found {
		// The adopter can never log in: the password hash is random and the
		// plaintext is discarded.
		hash, err := auth.HashPassword(util.NewID())
		if err != nil {
			return nil, fmt.Errorf("hash adopter password: %w", err)
		}
		adopter, err = cfg.Store.CreateUser(domain.User{
			Username:     cfg.AdopterUsername,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("provision adopter account: %w", err)
		}
		slog.Info("provisioned adopter account", "username", cfg.AdopterUsername, "user_id", adopter.ID)
	}
	a.adopterID = adopter.ID
	return a, nil
}

// MaxFileBytes returns the configured upload size limit.
func (a *App) MaxFileBytes() int64 {
	return a.maxFileBytes
}

// Register creates a user account. Password policy checks happen in the HTTP
// layer's field validation; here the password is only hashed.
func (a *App) Register(username, email, password string) (domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Login validates credentials and issues a bearer token. Existing sessions of
// the user are dropped first so only one session is active at a time.
func (a *App) Login(username, password string) (store.Session, error) {
	user, found, err := a.store.GetUserByUsername(username)
	if err != nil {
		return store.Session{}, fmt.Errorf("get user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return store.Session{}, ErrInvalidCredentials
	}
	if err := a.sessions.DeleteSessionsForUser(user.ID); err != nil {
		return store.Session{}, fmt.Errorf("drop previous sessions: %w", err)
	}
	sess, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return store.Session{}, fmt.Errorf("issue session: %w", err)
	}
	return sess, nil
}

// Logout revokes the token and releases every lock the user holds.
func (a *App) Logout(token string, userID int64) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return a.ReleaseAllHeldBy(userID)
}

// UserFromToken resolves a bearer token to its user.
func (a *App) UserFromToken(token string) (domain.User, bool, error) {
	userID, found, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !found {
		return domain.User{}, false, err
	}
	return a.store.GetUserByID(userID)
}

// users

// ListUsers returns all user accounts.
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// GetUser returns one user account.
func (a *App) GetUser(id int64) (domain.User, error) {
	u, found, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

// DeleteUser removes an account: owned projects are deleted with their blobs,
// sessions are revoked, held locks clear, and ModelData the user owned in
// other projects reassigns to the adopter.
func (a *App) DeleteUser(ctx context.Context, userID int64) error {
	if _, err := a.GetUser(userID); err != nil {
		return err
	}
	owned, err := a.store.ListProjectsOwnedBy(userID)
	if err != nil {
		return fmt.Errorf("list owned projects: %w", err)
	}
	for _, p := range owned {
		if err := a.deleteProject(ctx, p); err != nil {
			return err
		}
	}
	if err := a.sessions.DeleteSessionsForUser(userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if err := a.store.DeleteUser(userID, a.adopterID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// projects

// CreateProject creates a project owned by the actor.
func (a *App) CreateProject(actorID int64, name, description string) (domain.Project, error) {
	owner, err := a.GetUser(actorID)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := a.store.CreateProject(domain.Project{Name: name, Description: description, Owner: owner})
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetProjectAuthorized fetches a project the actor may see.
func (a *App) GetProjectAuthorized(actorID, id int64) (domain.Project, error) {
	p, found, err := a.store.GetProject(id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	if !found {
		return domain.Project{}, ErrNotFound
	}
	if err := a.Authorize(actorID, p, MemberOrOwner, 0); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjectsForUser lists projects owned by or shared with the given user.
// Only the authenticated user may ask for their own list.
func (a *App) ListProjectsForUser(actorID int64, userID *int64) ([]domain.Project, error) {
	if userID == nil || *userID != actorID {
		return nil, ErrMissingPermission
	}
	return a.store.ListProjectsForUser(actorID)
}

// UpdateProject applies a partial update of the whitelisted fields.
func (a *App) UpdateProject(actorID, id int64, name, description *string) (domain.Project, error) {
	p, err := a.GetProjectAuthorized(actorID, id)
	if err != nil {
		return domain.Project{}, err
	}
	newName, newDescription := p.Name, p.Description
	if name != nil {
		newName = *name
	}
	if description != nil {
		newDescription = *description
	}
	if err := a.store.UpdateProject(id, newName, newDescription); err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	return a.GetProjectAuthorized(actorID, id)
}

// DeleteProject removes a project, its model data and every stored blob.
// Owner only.
func (a *App) DeleteProject(ctx context.Context, actorID, id int64) error {
	p, found, err := a.store.GetProject(id)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if err := a.Authorize(actorID, p, OwnerOnly, 0); err != nil {
		return err
	}
	return a.deleteProject(ctx, p)
}

func (a *App) deleteProject(ctx context.Context, p domain.Project) error {
	// Refetch: project listings do not carry model data, and the file cleanup
	// below needs every contained ModelData with its file records.
	full, found, err := a.store.GetProject(p.ID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if found {
		p = full
	}
	for _, md := range p.ModelData {
		if err := a.DeleteModelDataFiles(ctx, md); err != nil {
			return err
		}
	}
	if err := a.store.DeleteProject(p.ID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// membership

// ListProjectMembers returns the project's member set.
func (a *App) ListProjectMembers(actorID, projectID int64) ([]domain.User, error) {
	p, err := a.GetProjectAuthorized(actorID, projectID)
	if err != nil {
		return nil, err
	}
	return p.Members, nil
}

// AddProjectMember adds a user to the project. Owner only.
func (a *App) AddProjectMember(actorID, projectID, userID int64) error {
	p, found, err := a.store.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if err := a.Authorize(actorID, p, OwnerOnly, 0); err != nil {
		return err
	}
	if _, err := a.GetUser(userID); err != nil {
		return err
	}
	if err := a.store.AddProjectMember(projectID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveProjectMember removes a user from the project. Members may remove
// themselves; the owner may remove anyone.
func (a *App) RemoveProjectMember(actorID, projectID, userID int64) error {
	p, found, err := a.store.GetProject(projectID)
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	if err := a.Authorize(actorID, p, SelfOrOwner, userID); err != nil {
		return err
	}
	if err := a.store.RemoveProjectMember(projectID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// labels

// CreateLabel creates a label in a project the actor belongs to.
func (a *App) CreateLabel(actorID int64, l domain.Label) (domain.Label, error) {
	if _, err := a.GetProjectAuthorized(actorID, l.ProjectID); err != nil {
		return domain.Label{}, err
	}
	created, err := a.store.CreateLabel(l)
	if err != nil {
		return domain.Label{}, err
	}
	return created, nil
}

// GetLabelAuthorized fetches a label the actor may see.
func (a *App) GetLabelAuthorized(actorID, id int64) (domain.Label, error) {
	l, found, err := a.store.GetLabel(id)
	if err != nil {
		return domain.Label{}, fmt.Errorf("get label: %w", err)
	}
	if !found {
		return domain.Label{}, ErrNotFound
	}
	if err := a.Authorize(actorID, l, MemberOrOwner, 0); err != nil {
		return domain.Label{}, err
	}
	return l, nil
}

// ListLabels applies the list filter rules: exactly one of projectID or
// userID, userID only for the actor themselves, projectID only with
// membership.
func (a *App) ListLabels(actorID int64, projectID, userID *int64) ([]domain.Label, error) {
	// A foreign userID is rejected even when a projectID is also given.
	if userID != nil && *userID != actorID {
		return nil, ErrMissingPermission
	}
	switch {
	case projectID != nil:
		if _, err := a.GetProjectAuthorized(actorID, *projectID); err != nil {
			return nil, err
		}
		return a.store.ListLabels(*projectID)
	case userID != nil:
		return a.store.ListLabelsForUser(actorID)
	default:
		return nil, ErrMissingPermission
	}
}

// UpdateLabel applies a partial update of the whitelisted fields.
func (a *App) UpdateLabel(actorID, id int64, name *string, color *int) (domain.Label, error) {
	l, err := a.GetLabelAuthorized(actorID, id)
	if err != nil {
		return domain.Label{}, err
	}
	newName, newColor := l.Name, l.Color
	if name != nil {
		newName = *name
	}
	if color != nil {
		newColor = *color
	}
	if err := a.store.UpdateLabel(id, newName, newColor); err != nil {
		return domain.Label{}, fmt.Errorf("update label: %w", err)
	}
	return a.GetLabelAuthorized(actorID, id)
}

// DeleteLabel removes a label.
func (a *App) DeleteLabel(actorID, id int64) error {
	if _, err := a.GetLabelAuthorized(actorID, id); err != nil {
		return err
	}
	if err := a.store.DeleteLabel(id); err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	return nil
}

// model data

// CreateModelData creates a record in a project the actor belongs to, owned
// by the actor.
func (a *App) CreateModelData(actorID int64, md domain.ModelData) (domain.ModelData, error) {
	if _, err := a.GetProjectAuthorized(actorID, md.ProjectID); err != nil {
		return domain.ModelData{}, err
	}
	owner, err := a.GetUser(actorID)
	if err != nil {
		return domain.ModelData{}, err
	}
	md.Owner = owner
	created, err := a.store.CreateModelData(md)
	if err != nil {
		return domain.ModelData{}, fmt.Errorf("create model data: %w", err)
	}
	return created, nil
}

// GetModelDataAuthorized fetches a record the actor may see.
func (a *App) GetModelDataAuthorized(actorID, id int64) (domain.ModelData, error) {
	md, found, err := a.store.GetModelData(id)
	if err != nil {
		return domain.ModelData{}, fmt.Errorf("get model data: %w", err)
	}
	if !found {
		return domain.ModelData{}, ErrNotFound
	}
	if err := a.Authorize(actorID, md, MemberOrOwner, 0); err != nil {
		return domain.ModelData{}, err
	}
	return md, nil
}

// ListModelData applies the same filter rules as ListLabels.
func (a *App) ListModelData(actorID int64, projectID, userID *int64) ([]domain.ModelData, error) {
	if userID != nil && *userID != actorID {
		return nil, ErrMissingPermission
	}
	switch {
	case projectID != nil:
		if _, err := a.GetProjectAuthorized(actorID, *projectID); err != nil {
			return nil, err
		}
		return a.store.ListModelData(*projectID)
	case userID != nil:
		return a.store.ListModelDataForUser(actorID)
	default:
		return nil, ErrMissingPermission
	}
}

// UpdateModelDataName applies the partial update; name is the only mutable
// field.
func (a *App) UpdateModelDataName(actorID, id int64, name *string) (domain.ModelData, error) {
	md, err := a.GetModelDataAuthorized(actorID, id)
	if err != nil {
		return domain.ModelData{}, err
	}
	if name != nil {
		if err := a.store.UpdateModelDataName(id, *name); err != nil {
			return domain.ModelData{}, fmt.Errorf("update model data: %w", err)
		}
		md, err = a.GetModelDataAuthorized(actorID, id)
		if err != nil {
			return domain.ModelData{}, err
		}
	}
	return md, nil
}

// DeleteModelData removes the record, then both file records and blobs, the
// record's storage directory, and the project directory when it emptied out.
func (a *App) DeleteModelData(ctx context.Context, actorID, id int64) error {
	md, err := a.GetModelDataAuthorized(actorID, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteModelData(id); err != nil {
		return fmt.Errorf("delete model data: %w", err)
	}
	return a.DeleteModelDataFiles(ctx, md)
}
