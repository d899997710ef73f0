package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"annotator3d/pkg/domain"
	"annotator3d/pkg/storage"
	"annotator3d/pkg/store"
)

func newTestApp(t *testing.T) (*App, store.Store, *storage.MemoryStore) {
	t.Helper()
	dataStore := store.NewMemoryStore()
	objects := storage.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := New(Config{
		Store:        dataStore,
		Sessions:     sessions,
		Objects:      objects,
		MaxFileBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, dataStore, objects
}

func registerUser(t *testing.T, a *App, name string) domain.User {
	t.Helper()
	u, err := a.Register(name, name+"@example.com", "longenough")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return u
}

func makeProject(t *testing.T, a *App, owner domain.User) domain.Project {
	t.Helper()
	p, err := a.CreateProject(owner.ID, "scan", "city scan")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func makeModelData(t *testing.T, a *App, actor domain.User, p domain.Project) domain.ModelData {
	t.Helper()
	md, err := a.CreateModelData(actor.ID, domain.ModelData{
		Name:           "bridge",
		ModelType:      "pointcloud",
		AnnotationType: "semantic",
		ProjectID:      p.ID,
	})
	if err != nil {
		t.Fatalf("create model data: %v", err)
	}
	return md
}

func upload(name string, content string) Upload {
	return Upload{
		Filename: name,
		Size:     int64(len(content)),
		Format:   "zip",
		Body:     strings.NewReader(content),
	}
}

func TestRegisterAndLogin(t *testing.T) {
	a, _, _ := newTestApp(t)
	u := registerUser(t, a, "alice")

	if _, err := a.Register("alice", "dup@example.com", "longenough"); !errors.Is(err, store.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	sess, err := a.Login("alice", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	got, found, err := a.UserFromToken(sess.Token)
	if err != nil || !found {
		t.Fatalf("user from token: found=%v err=%v", found, err)
	}
	if got.ID != u.ID {
		t.Fatalf("token resolves to user %d, want %d", got.ID, u.ID)
	}

	if _, err := a.Login("alice", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.Login("nobody", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLoginDropsPreviousSession(t *testing.T) {
	a, _, _ := newTestApp(t)
	registerUser(t, a, "alice")

	first, err := a.Login("alice", "longenough")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	// iat claims carry second precision, so cross a second boundary before
	// logging in again.
	time.Sleep(1100 * time.Millisecond)
	second, err := a.Login("alice", "longenough")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, found, _ := a.UserFromToken(first.Token); found {
		t.Fatal("first session still valid after second login")
	}
	if _, found, _ := a.UserFromToken(second.Token); !found {
		t.Fatal("second session not valid")
	}
}

func TestLogoutReleasesHeldLocks(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice := registerUser(t, a, "alice")
	bob := registerUser(t, a, "bob")
	p := makeProject(t, a, alice)
	if err := a.AddProjectMember(alice.ID, p.ID, bob.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	mdAlice := makeModelData(t, a, alice, p)
	mdBob := makeModelData(t, a, alice, p)

	if _, err := a.SetLock(mdAlice.ID, alice.ID, true, nil); err != nil {
		t.Fatalf("alice lock: %v", err)
	}
	if _, err := a.SetLock(mdBob.ID, bob.ID, true, nil); err != nil {
		t.Fatalf("bob lock: %v", err)
	}

	sess, err := a.Login("alice", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.Logout(sess.Token, alice.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	got, err := a.GetModelDataAuthorized(alice.ID, mdAlice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LockedBy != nil {
		t.Fatal("alice's lock survived logout")
	}
	got, err = a.GetModelDataAuthorized(alice.ID, mdBob.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LockedBy == nil || got.LockedBy.ID != bob.ID {
		t.Fatal("bob's lock should be untouched by alice's logout")
	}
}

func TestAuthorizePanicsOnUnsupportedEntity(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice := registerUser(t, a, "alice")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unsupported entity type")
		}
	}()
	_ = a.Authorize(alice.ID, domain.User{}, MemberOrOwner, 0)
}

func TestListFilterRules(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice := registerUser(t, a, "alice")
	mallory := registerUser(t, a, "mallory")
	p := makeProject(t, a, alice)

	if _, err := a.ListModelData(alice.ID, nil, nil); !errors.Is(err, ErrMissingPermission) {
		t.Fatalf("no filter: expected ErrMissingPermission, got %v", err)
	}
	if _, err := a.ListModelData(mallory.ID, nil, &alice.ID); !errors.Is(err, ErrMissingPermission) {
		t.Fatalf("foreign user_id: expected ErrMissingPermission, got %v", err)
	}
	if _, err := a.ListModelData(mallory.ID, &p.ID, nil); !errors.Is(err, ErrMissingPermission) {
		t.Fatalf("non-member project_id: expected ErrMissingPermission, got %v", err)
	}
	if _, err := a.ListModelData(alice.ID, &p.ID, nil); err != nil {
		t.Fatalf("member project_id: %v", err)
	}
	if _, err := a.ListLabels(alice.ID, nil, &alice.ID); err != nil {
		t.Fatalf("own user_id: %v", err)
	}
	if _, err := a.ListProjectsForUser(alice.ID, nil); !errors.Is(err, ErrMissingPermission) {
		t.Fatalf("projects without user_id: expected ErrMissingPermission, got %v", err)
	}
}

func TestLabelAnnotationClassUniqueness(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice := registerUser(t, a, "alice")
	p1 := makeProject(t, a, alice)
	p2 := makeProject(t, a, alice)

	if _, err := a.CreateLabel(alice.ID, domain.Label{Name: "Car", AnnotationClass: 1, Color: 255, ProjectID: p1.ID}); err != nil {
		t.Fatalf("create label: %v", err)
	}
	if _, err := a.CreateLabel(alice.ID, domain.Label{Name: "Tree", AnnotationClass: 1, Color: 127, ProjectID: p1.ID}); !errors.Is(err, store.ErrAnnotationClassTaken) {
		t.Fatalf("expected ErrAnnotationClassTaken, got %v", err)
	}
	if _, err := a.CreateLabel(alice.ID, domain.Label{Name: "Car", AnnotationClass: 1, Color: 255, ProjectID: p2.ID}); err != nil {
		t.Fatalf("same class in other project: %v", err)
	}
}

func TestLockScenario(t *testing.T) {
	a, _, _ := newTestApp(t)
	u1 := registerUser(t, a, "u1")
	u2 := registerUser(t, a, "u2")
	u3 := registerUser(t, a, "u3")
	p := makeProject(t, a, u1)
	if err := a.AddProjectMember(u1.ID, p.ID, u2.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	md := makeModelData(t, a, u1, p)

	// Member locks for themselves.
	got, err := a.SetLock(md.ID, u2.ID, true, nil)
	if err != nil {
		t.Fatalf("u2 acquire: %v", err)
	}
	if got.LockedBy == nil || got.LockedBy.ID != u2.ID {
		t.Fatalf("lock holder: %+v", got.LockedBy)
	}

	// Owner cannot re-acquire a held lock, even for the current holder.
	if _, err := a.SetLock(md.ID, u1.ID, true, &u2.ID); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}

	// Owner force-unlocks.
	got, err = a.SetLock(md.ID, u1.ID, false, nil)
	if err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if got.LockedBy != nil {
		t.Fatal("lock not released")
	}

	// Locking on behalf of a non-member fails.
	if _, err := a.SetLock(md.ID, u1.ID, true, &u3.ID); !errors.Is(err, ErrNotProjectMember) {
		t.Fatalf("expected ErrNotProjectMember, got %v", err)
	}

	// A member cannot lock on behalf of another member.
	if err := a.AddProjectMember(u1.ID, p.ID, u3.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := a.SetLock(md.ID, u2.ID, true, &u3.ID); !errors.Is(err, ErrMissingPermission) {
		t.Fatalf("expected ErrMissingPermission, got %v", err)
	}

	// The owner may lock on behalf of a member.
	got, err = a.SetLock(md.ID, u1.ID, true, &u3.ID)
	if err != nil {
		t.Fatalf("owner lock for member: %v", err)
	}
	if got.LockedBy == nil || got.LockedBy.ID != u3.ID {
		t.Fatalf("lock holder: %+v", got.LockedBy)
	}

	// A non-holder member cannot release; only holder or owner.
	if _, err := a.SetLock(md.ID, u2.ID, false, nil); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	a, dataStore, _ := newTestApp(t)
	alice := registerUser(t, a, "alice")
	bob := registerUser(t, a, "bob")
	pAlice := makeProject(t, a, alice)
	pBob := makeProject(t, a, bob)
	if err := a.AddProjectMember(bob.ID, pBob.ID, alice.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	mdInBob := makeModelData(t, a, alice, pBob)
	mdOwn := makeModelData(t, a, alice, pAlice)
	if _, err := a.SetLock(mdInBob.ID, alice.ID, true, nil); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if err := a.DeleteUser(context.Background(), alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	// Alice's own project and its model data are gone.
	if _, found, _ := dataStore.GetProject(pAlice.ID); found {
		t.Fatal("owned project survived user deletion")
	}
	if _, found, _ := dataStore.GetModelData(mdOwn.ID); found {
		t.Fatal("model data of owned project survived")
	}

	// Her model data in bob's project reassigned to the adopter and unlocked.
	got, found, err := dataStore.GetModelData(mdInBob.ID)
	if err != nil || !found {
		t.Fatalf("get model data: found=%v err=%v", found, err)
	}
	if got.Owner.Username != "ModelDataAdopter" {
		t.Fatalf("owner after deletion: %q", got.Owner.Username)
	}
	if got.LockedBy != nil {
		t.Fatal("lock survived holder deletion")
	}
}

func TestUpdateWhitelists(t *testing.T) {
	a, _, _ := newTestApp(t)
	alice := registerUser(t, a, "alice")
	p := makeProject(t, a, alice)
	md := makeModelData(t, a, alice, p)

	name := "renamed"
	got, err := a.UpdateModelDataName(alice.ID, md.ID, &name)
	if err != nil {
		t.Fatalf("update model data: %v", err)
	}
	if got.Name != "renamed" || got.ModelType != "pointcloud" {
		t.Fatalf("unexpected record after update: %+v", got)
	}

	desc := "updated"
	proj, err := a.UpdateProject(alice.ID, p.ID, nil, &desc)
	if err != nil {
		t.Fatalf("update project: %v", err)
	}
	if proj.Name != "scan" || proj.Description != "updated" {
		t.Fatalf("unexpected project after partial update: %+v", proj)
	}
}
