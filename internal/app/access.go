package app

import (
	"fmt"

	"annotator3d/pkg/domain"
)

// Capability names the access level an action requires on a project.
type Capability int

const (
	// MemberOrOwner allows project members and the project owner.
	MemberOrOwner Capability = iota
	// OwnerOnly allows the project owner alone.
	OwnerOnly
	// SelfOrOwner allows the target user themselves or the project owner.
	SelfOrOwner
)

// IsOwner reports whether the user owns the project.
func IsOwner(p domain.Project, userID int64) bool {
	return p.Owner.ID == userID
}

// IsMemberOrOwner reports whether the user owns the project or is a member.
func IsMemberOrOwner(p domain.Project, userID int64) bool {
	if IsOwner(p, userID) {
		return true
	}
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// projectForEntity resolves the project an entity belongs to. Passing any type
// outside Project, Label or ModelData is a programming error and panics.
func (a *App) projectForEntity(entity any) (domain.Project, error) {
	var projectID int64
	switch e := entity.(type) {
	case domain.Project:
		return e, nil
	case domain.Label:
		projectID = e.ProjectID
	case domain.ModelData:
		projectID = e.ProjectID
	default:
		panic(fmt.Sprintf("access check on unsupported entity type %T", entity))
	}
	p, found, err := a.store.GetProject(projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("resolve project: %w", err)
	}
	if !found {
		return domain.Project{}, ErrNotFound
	}
	return p, nil
}

// Authorize checks the capability for the acting user against the entity's
// project. targetUserID is only consulted for SelfOrOwner.
func (a *App) Authorize(actorID int64, entity any, capability Capability, targetUserID int64) error {
	p, err := a.projectForEntity(entity)
	if err != nil {
		return err
	}
	switch capability {
	case MemberOrOwner:
		if IsMemberOrOwner(p, actorID) {
			return nil
		}
	case OwnerOnly:
		if IsOwner(p, actorID) {
			return nil
		}
	case SelfOrOwner:
		if actorID == targetUserID || IsOwner(p, actorID) {
			return nil
		}
	default:
		panic(fmt.Sprintf("unknown capability %d", capability))
	}
	return ErrMissingPermission
}
