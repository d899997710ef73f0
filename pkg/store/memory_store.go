package store

import (
	"sort"
	"sync"
	"time"

	"annotator3d/pkg/domain"
)

// MemoryStore keeps all records in-process. Used by tests; it mirrors the
// GormStore's deletion and locking semantics exactly.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64

	users      map[int64]domain.User
	projects   map[int64]projectRecord
	labels     map[int64]domain.Label
	modelData  map[int64]modelDataRecord
	files      map[int64]domain.File
	membership map[int64]map[int64]struct{} // project ID -> member user IDs
}

type projectRecord struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	OwnerID     int64
}

type modelDataRecord struct {
	ID               int64
	Name             string
	ModelType        string
	AnnotationType   string
	ProjectID        int64
	OwnerID          int64
	LockedByID       *int64
	BaseFileID       *int64
	AnnotationFileID *int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]domain.User),
		projects:   make(map[int64]projectRecord),
		labels:     make(map[int64]domain.Label),
		modelData:  make(map[int64]modelDataRecord),
		files:      make(map[int64]domain.File),
		membership: make(map[int64]map[int64]struct{}),
	}
}

func (m *MemoryStore) nextIDLocked() int64 {
	m.nextID++
	return m.nextID
}

// users

func (m *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return domain.User{}, ErrUsernameTaken
		}
	}
	u.ID = m.nextIDLocked()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) GetUserByID(id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByUsername(username string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) DeleteUser(id int64, adopterID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for mdID, md := range m.modelData {
		if md.OwnerID == id {
			md.OwnerID = adopterID
		}
		if md.LockedByID != nil && *md.LockedByID == id {
			md.LockedByID = nil
		}
		m.modelData[mdID] = md
	}
	for fileID, f := range m.files {
		if f.UploadedBy != nil && f.UploadedBy.ID == id {
			f.UploadedBy = nil
			m.files[fileID] = f
		}
	}
	for _, members := range m.membership {
		delete(members, id)
	}
	delete(m.users, id)
	return nil
}

// projects

func (m *MemoryStore) CreateProject(p domain.Project) (domain.Project, error) {
	m.mu.Lock()
	rec := projectRecord{
		ID:          m.nextIDLocked(),
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   time.Now().UTC(),
		OwnerID:     p.Owner.ID,
	}
	m.projects[rec.ID] = rec
	m.membership[rec.ID] = make(map[int64]struct{})
	m.mu.Unlock()
	created, _, err := m.GetProject(rec.ID)
	return created, err
}

func (m *MemoryStore) GetProject(id int64) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.projects[id]
	if !ok {
		return domain.Project{}, false, nil
	}
	return m.assembleProjectLocked(rec), true, nil
}

func (m *MemoryStore) assembleProjectLocked(rec projectRecord) domain.Project {
	p := domain.Project{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt,
		Owner:       m.users[rec.OwnerID],
	}
	memberIDs := make([]int64, 0, len(m.membership[rec.ID]))
	for uid := range m.membership[rec.ID] {
		memberIDs = append(memberIDs, uid)
	}
	sort.Slice(memberIDs, func(i, j int) bool { return memberIDs[i] < memberIDs[j] })
	for _, uid := range memberIDs {
		if u, ok := m.users[uid]; ok {
			p.Members = append(p.Members, u)
		}
	}
	for _, md := range m.sortedModelDataLocked(rec.ID) {
		p.ModelData = append(p.ModelData, md)
	}
	labelIDs := make([]int64, 0)
	for _, l := range m.labels {
		if l.ProjectID == rec.ID {
			labelIDs = append(labelIDs, l.ID)
		}
	}
	sort.Slice(labelIDs, func(i, j int) bool { return labelIDs[i] < labelIDs[j] })
	for _, lid := range labelIDs {
		p.Labels = append(p.Labels, m.labels[lid])
	}
	return p
}

func (m *MemoryStore) ListProjectsForUser(userID int64) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Project
	for _, rec := range m.projects {
		_, member := m.membership[rec.ID][userID]
		if rec.OwnerID == userID || member {
			out = append(out, m.assembleProjectLocked(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListProjectsOwnedBy(userID int64) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Project
	for _, rec := range m.projects {
		if rec.OwnerID == userID {
			out = append(out, m.assembleProjectLocked(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateProject(id int64, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.projects[id]
	if !ok {
		return nil
	}
	rec.Name = name
	rec.Description = description
	m.projects[id] = rec
	return nil
}

func (m *MemoryStore) DeleteProject(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for lid, l := range m.labels {
		if l.ProjectID == id {
			delete(m.labels, lid)
		}
	}
	for mdID, md := range m.modelData {
		if md.ProjectID == id {
			delete(m.modelData, mdID)
		}
	}
	delete(m.membership, id)
	delete(m.projects, id)
	return nil
}

// membership

func (m *MemoryStore) AddProjectMember(projectID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.membership[projectID]
	if !ok {
		members = make(map[int64]struct{})
		m.membership[projectID] = members
	}
	members[userID] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveProjectMember(projectID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.membership[projectID], userID)
	return nil
}

// labels

func (m *MemoryStore) CreateLabel(l domain.Label) (domain.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.labels {
		if existing.ProjectID == l.ProjectID && existing.AnnotationClass == l.AnnotationClass {
			return domain.Label{}, ErrAnnotationClassTaken
		}
	}
	l.ID = m.nextIDLocked()
	m.labels[l.ID] = l
	return l, nil
}

func (m *MemoryStore) GetLabel(id int64) (domain.Label, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.labels[id]
	return l, ok, nil
}

func (m *MemoryStore) ListLabels(projectID int64) ([]domain.Label, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Label
	for _, l := range m.labels {
		if l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListLabelsForUser(userID int64) ([]domain.Label, error) {
	projects, err := m.ListProjectsForUser(userID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Label
	for _, p := range projects {
		for _, l := range m.labels {
			if l.ProjectID == p.ID {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateLabel(id int64, name string, color int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.labels[id]
	if !ok {
		return nil
	}
	l.Name = name
	l.Color = color
	m.labels[id] = l
	return nil
}

func (m *MemoryStore) DeleteLabel(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.labels, id)
	return nil
}

// model data

func (m *MemoryStore) CreateModelData(md domain.ModelData) (domain.ModelData, error) {
	m.mu.Lock()
	rec := modelDataRecord{
		ID:             m.nextIDLocked(),
		Name:           md.Name,
		ModelType:      md.ModelType,
		AnnotationType: md.AnnotationType,
		ProjectID:      md.ProjectID,
		OwnerID:        md.Owner.ID,
	}
	m.modelData[rec.ID] = rec
	m.mu.Unlock()
	created, _, err := m.GetModelData(rec.ID)
	return created, err
}

func (m *MemoryStore) GetModelData(id int64) (domain.ModelData, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.modelData[id]
	if !ok {
		return domain.ModelData{}, false, nil
	}
	return m.assembleModelDataLocked(rec), true, nil
}

func (m *MemoryStore) assembleModelDataLocked(rec modelDataRecord) domain.ModelData {
	md := domain.ModelData{
		ID:             rec.ID,
		Name:           rec.Name,
		ModelType:      rec.ModelType,
		AnnotationType: rec.AnnotationType,
		ProjectID:      rec.ProjectID,
		Owner:          m.users[rec.OwnerID],
	}
	if rec.LockedByID != nil {
		if u, ok := m.users[*rec.LockedByID]; ok {
			md.LockedBy = &u
		}
	}
	if rec.BaseFileID != nil {
		if f, ok := m.files[*rec.BaseFileID]; ok {
			md.BaseFile = &f
		}
	}
	if rec.AnnotationFileID != nil {
		if f, ok := m.files[*rec.AnnotationFileID]; ok {
			md.AnnotationFile = &f
		}
	}
	return md
}

func (m *MemoryStore) sortedModelDataLocked(projectID int64) []domain.ModelData {
	ids := make([]int64, 0)
	for _, rec := range m.modelData {
		if rec.ProjectID == projectID {
			ids = append(ids, rec.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.ModelData, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.assembleModelDataLocked(m.modelData[id]))
	}
	return out
}

func (m *MemoryStore) ListModelData(projectID int64) ([]domain.ModelData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedModelDataLocked(projectID), nil
}

func (m *MemoryStore) ListModelDataForUser(userID int64) ([]domain.ModelData, error) {
	projects, err := m.ListProjectsForUser(userID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ModelData
	for _, p := range projects {
		out = append(out, m.sortedModelDataLocked(p.ID)...)
	}
	return out, nil
}

func (m *MemoryStore) UpdateModelDataName(id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modelData[id]
	if !ok {
		return nil
	}
	rec.Name = name
	m.modelData[id] = rec
	return nil
}

func (m *MemoryStore) DeleteModelData(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.modelData, id)
	return nil
}

func (m *MemoryStore) SetBaseFile(modelDataID, fileID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modelData[modelDataID]
	if !ok {
		return nil
	}
	rec.BaseFileID = &fileID
	m.modelData[modelDataID] = rec
	return nil
}

func (m *MemoryStore) SetAnnotationFile(modelDataID, fileID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modelData[modelDataID]
	if !ok {
		return nil
	}
	rec.AnnotationFileID = &fileID
	m.modelData[modelDataID] = rec
	return nil
}

// locking

func (m *MemoryStore) AcquireLock(modelDataID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modelData[modelDataID]
	if !ok || rec.LockedByID != nil {
		return false, nil
	}
	rec.LockedByID = &userID
	m.modelData[modelDataID] = rec
	return true, nil
}

func (m *MemoryStore) ClearLock(modelDataID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.modelData[modelDataID]
	if !ok {
		return nil
	}
	rec.LockedByID = nil
	m.modelData[modelDataID] = rec
	return nil
}

func (m *MemoryStore) ClearLocksHeldBy(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.modelData {
		if rec.LockedByID != nil && *rec.LockedByID == userID {
			rec.LockedByID = nil
			m.modelData[id] = rec
		}
	}
	return nil
}

// file records

func (m *MemoryStore) CreateFile(f domain.File) (domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.nextIDLocked()
	m.files[f.ID] = f
	return f, nil
}

func (m *MemoryStore) UpdateFile(f domain.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[f.ID]; !ok {
		return nil
	}
	m.files[f.ID] = f
	return nil
}

func (m *MemoryStore) DeleteFile(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for mdID, rec := range m.modelData {
		if rec.BaseFileID != nil && *rec.BaseFileID == id {
			rec.BaseFileID = nil
		}
		if rec.AnnotationFileID != nil && *rec.AnnotationFileID == id {
			rec.AnnotationFileID = nil
		}
		m.modelData[mdID] = rec
	}
	delete(m.files, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
