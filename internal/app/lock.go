package app

import (
	"fmt"

	"annotator3d/pkg/domain"
)

// CheckLock is the read-only guard applied before mutating a locked ModelData.
// It passes when the record is unlocked, when the actor holds the lock, or
// when allowOwner is set and the actor owns the project.
func CheckLock(md domain.ModelData, project domain.Project, actorID int64, allowOwner bool) error {
	if md.LockedBy == nil || md.LockedBy.ID == actorID {
		return nil
	}
	if allowOwner && IsOwner(project, actorID) {
		return nil
	}
	return ErrLocked
}

// SetLock acquires or releases the lock on a ModelData record. With
// targetUserID set, the lock is taken on that user's behalf: the target must
// be part of the project, and only the owner may lock for someone else.
// Release is unconditional once CheckLock(allowOwner=true) passed, which is
// what lets the owner force-unlock without being able to steal the lock.
func (a *App) SetLock(modelDataID, actorID int64, lock bool, targetUserID *int64) (domain.ModelData, error) {
	md, found, err := a.store.GetModelData(modelDataID)
	if err != nil {
		return domain.ModelData{}, fmt.Errorf("get model data: %w", err)
	}
	if !found {
		return domain.ModelData{}, ErrNotFound
	}
	project, err := a.projectForEntity(md)
	if err != nil {
		return domain.ModelData{}, err
	}
	if !IsMemberOrOwner(project, actorID) {
		return domain.ModelData{}, ErrMissingPermission
	}
	if err := CheckLock(md, project, actorID, true); err != nil {
		return domain.ModelData{}, err
	}

	if !lock {
		if err := a.store.ClearLock(md.ID); err != nil {
			return domain.ModelData{}, fmt.Errorf("clear lock: %w", err)
		}
		return a.refetchModelData(md.ID)
	}

	if md.LockedBy != nil {
		return domain.ModelData{}, ErrAlreadyLocked
	}
	holderID := actorID
	if targetUserID != nil {
		holderID = *targetUserID
		if !IsMemberOrOwner(project, holderID) {
			return domain.ModelData{}, ErrNotProjectMember
		}
		if actorID != holderID && !IsOwner(project, actorID) {
			return domain.ModelData{}, ErrMissingPermission
		}
	}
	ok, err := a.store.AcquireLock(md.ID, holderID)
	if err != nil {
		return domain.ModelData{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		// Lost the compare-and-swap to a concurrent acquire.
		return domain.ModelData{}, ErrAlreadyLocked
	}
	return a.refetchModelData(md.ID)
}

// ReleaseAllHeldBy unlocks every ModelData the user holds. Used on logout and
// account deletion; no permission check.
func (a *App) ReleaseAllHeldBy(userID int64) error {
	if err := a.store.ClearLocksHeldBy(userID); err != nil {
		return fmt.Errorf("clear locks: %w", err)
	}
	return nil
}

func (a *App) refetchModelData(id int64) (domain.ModelData, error) {
	md, found, err := a.store.GetModelData(id)
	if err != nil {
		return domain.ModelData{}, fmt.Errorf("get model data: %w", err)
	}
	if !found {
		return domain.ModelData{}, ErrNotFound
	}
	return md, nil
}
