package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"annotator3d/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ProjectModel{},
		&FileModel{},
		&ModelDataModel{},
		&LabelModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

var modelDataPreloads = []string{"Owner", "LockedBy", "BaseFile", "BaseFile.UploadedBy", "AnnotationFile", "AnnotationFile.UploadedBy"}

func preloadModelData(tx *gorm.DB) *gorm.DB {
	for _, assoc := range modelDataPreloads {
		tx = tx.Preload(assoc)
	}
	return tx
}

// users

func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	model.ID = 0
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

func (s *GormStore) GetUserByID(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, nil
}

func (s *GormStore) DeleteUser(id int64, adopterID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ModelDataModel{}).Where("owner_id = ?", id).
			Update("owner_id", adopterID).Error; err != nil {
			return err
		}
		if err := tx.Model(&ModelDataModel{}).Where("locked_by_id = ?", id).
			Update("locked_by_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&FileModel{}).Where("uploaded_by_id = ?", id).
			Update("uploaded_by_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM project_members WHERE user_model_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// projects

func (s *GormStore) CreateProject(p domain.Project) (domain.Project, error) {
	model := ProjectModel{
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   time.Now().UTC(),
		OwnerID:     p.Owner.ID,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Project{}, err
	}
	return s.mustGetProject(model.ID)
}

func (s *GormStore) GetProject(id int64) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.Preload("Owner").Preload("Members").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	var modelData []ModelDataModel
	if err := preloadModelData(s.db).Where("project_id = ?", id).Order("id ASC").Find(&modelData).Error; err != nil {
		return domain.Project{}, false, err
	}
	var labels []LabelModel
	if err := s.db.Where("project_id = ?", id).Order("id ASC").Find(&labels).Error; err != nil {
		return domain.Project{}, false, err
	}
	return projectFromModel(model, modelData, labels), true, nil
}

func (s *GormStore) mustGetProject(id int64) (domain.Project, error) {
	p, ok, err := s.GetProject(id)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (s *GormStore) ListProjectsForUser(userID int64) ([]domain.Project, error) {
	var models []ProjectModel
	err := s.db.Preload("Owner").
		Where("owner_id = ?", userID).
		Or("id IN (?)", s.db.Table("project_members").Select("project_model_id").Where("user_model_id = ?", userID)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(models))
	for _, m := range models {
		projects = append(projects, projectFromModel(m, nil, nil))
	}
	return projects, nil
}

func (s *GormStore) ListProjectsOwnedBy(userID int64) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Preload("Owner").Where("owner_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(models))
	for _, m := range models {
		projects = append(projects, projectFromModel(m, nil, nil))
	}
	return projects, nil
}

func (s *GormStore) UpdateProject(id int64, name, description string) error {
	return s.db.Model(&ProjectModel{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "description": description}).Error
}

func (s *GormStore) DeleteProject(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&LabelModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ModelDataModel{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM project_members WHERE project_model_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ProjectModel{}, "id = ?", id).Error
	})
}

// membership

func (s *GormStore) AddProjectMember(projectID, userID int64) error {
	return s.db.Exec(
		"INSERT INTO project_members (project_model_id, user_model_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		projectID, userID,
	).Error
}

func (s *GormStore) RemoveProjectMember(projectID, userID int64) error {
	return s.db.Exec(
		"DELETE FROM project_members WHERE project_model_id = ? AND user_model_id = ?",
		projectID, userID,
	).Error
}

// labels

func (s *GormStore) CreateLabel(l domain.Label) (domain.Label, error) {
	var count int64
	if err := s.db.Model(&LabelModel{}).
		Where("project_id = ? AND annotation_class = ?", l.ProjectID, l.AnnotationClass).
		Count(&count).Error; err != nil {
		return domain.Label{}, err
	}
	if count > 0 {
		return domain.Label{}, ErrAnnotationClassTaken
	}
	model := LabelModel{
		Name:            l.Name,
		AnnotationClass: l.AnnotationClass,
		Color:           l.Color,
		ProjectID:       l.ProjectID,
	}
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Label{}, ErrAnnotationClassTaken
		}
		return domain.Label{}, err
	}
	return labelFromModel(model), nil
}

func (s *GormStore) GetLabel(id int64) (domain.Label, bool, error) {
	var model LabelModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Label{}, false, nil
		}
		return domain.Label{}, false, err
	}
	return labelFromModel(model), true, nil
}

func (s *GormStore) ListLabels(projectID int64) ([]domain.Label, error) {
	var models []LabelModel
	if err := s.db.Where("project_id = ?", projectID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	labels := make([]domain.Label, 0, len(models))
	for _, m := range models {
		labels = append(labels, labelFromModel(m))
	}
	return labels, nil
}

func (s *GormStore) ListLabelsForUser(userID int64) ([]domain.Label, error) {
	projects, err := s.ListProjectsForUser(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var models []LabelModel
	if err := s.db.Where("project_id IN ?", ids).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	labels := make([]domain.Label, 0, len(models))
	for _, m := range models {
		labels = append(labels, labelFromModel(m))
	}
	return labels, nil
}

func (s *GormStore) UpdateLabel(id int64, name string, color int) error {
	return s.db.Model(&LabelModel{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "color": color}).Error
}

func (s *GormStore) DeleteLabel(id int64) error {
	return s.db.Delete(&LabelModel{}, "id = ?", id).Error
}

// model data

func (s *GormStore) CreateModelData(md domain.ModelData) (domain.ModelData, error) {
	model := ModelDataModel{
		Name:           md.Name,
		ModelType:      md.ModelType,
		AnnotationType: md.AnnotationType,
		ProjectID:      md.ProjectID,
		OwnerID:        md.Owner.ID,
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.ModelData{}, err
	}
	created, _, err := s.GetModelData(model.ID)
	return created, err
}

func (s *GormStore) GetModelData(id int64) (domain.ModelData, bool, error) {
	var model ModelDataModel
	if err := preloadModelData(s.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ModelData{}, false, nil
		}
		return domain.ModelData{}, false, err
	}
	return modelDataFromModel(model), true, nil
}

func (s *GormStore) ListModelData(projectID int64) ([]domain.ModelData, error) {
	var models []ModelDataModel
	if err := preloadModelData(s.db).Where("project_id = ?", projectID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return modelDataSlice(models), nil
}

func (s *GormStore) ListModelDataForUser(userID int64) ([]domain.ModelData, error) {
	projects, err := s.ListProjectsForUser(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ModelDataModel
	if err := preloadModelData(s.db).Where("project_id IN ?", ids).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return modelDataSlice(models), nil
}

func modelDataSlice(models []ModelDataModel) []domain.ModelData {
	out := make([]domain.ModelData, 0, len(models))
	for _, m := range models {
		out = append(out, modelDataFromModel(m))
	}
	return out
}

func (s *GormStore) UpdateModelDataName(id int64, name string) error {
	return s.db.Model(&ModelDataModel{}).Where("id = ?", id).Update("name", name).Error
}

func (s *GormStore) DeleteModelData(id int64) error {
	return s.db.Delete(&ModelDataModel{}, "id = ?", id).Error
}

func (s *GormStore) SetBaseFile(modelDataID, fileID int64) error {
	return s.db.Model(&ModelDataModel{}).Where("id = ?", modelDataID).
		Update("base_file_id", fileID).Error
}

func (s *GormStore) SetAnnotationFile(modelDataID, fileID int64) error {
	return s.db.Model(&ModelDataModel{}).Where("id = ?", modelDataID).
		Update("annotation_file_id", fileID).Error
}

// locking

// AcquireLock sets the holder only when the lock column is NULL. The
// conditional UPDATE makes concurrent acquires serialize on the row.
func (s *GormStore) AcquireLock(modelDataID, userID int64) (bool, error) {
	res := s.db.Model(&ModelDataModel{}).
		Where("id = ? AND locked_by_id IS NULL", modelDataID).
		Update("locked_by_id", userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ClearLock(modelDataID int64) error {
	return s.db.Model(&ModelDataModel{}).Where("id = ?", modelDataID).
		Update("locked_by_id", nil).Error
}

func (s *GormStore) ClearLocksHeldBy(userID int64) error {
	return s.db.Model(&ModelDataModel{}).Where("locked_by_id = ?", userID).
		Update("locked_by_id", nil).Error
}

// file records

func (s *GormStore) CreateFile(f domain.File) (domain.File, error) {
	model := FileModel{
		StorageKey: f.StorageKey,
		FileFormat: f.FileFormat,
		UploadDate: f.UploadDate,
	}
	if f.UploadedBy != nil {
		model.UploadedByID = &f.UploadedBy.ID
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.File{}, err
	}
	var created FileModel
	if err := s.db.Preload("UploadedBy").First(&created, "id = ?", model.ID).Error; err != nil {
		return domain.File{}, err
	}
	return *fileFromModel(&created), nil
}

func (s *GormStore) UpdateFile(f domain.File) error {
	updates := map[string]any{
		"file_format": f.FileFormat,
		"upload_date": f.UploadDate,
	}
	if f.UploadedBy != nil {
		updates["uploaded_by_id"] = f.UploadedBy.ID
	} else {
		updates["uploaded_by_id"] = nil
	}
	return s.db.Model(&FileModel{}).Where("id = ?", f.ID).Updates(updates).Error
}

func (s *GormStore) DeleteFile(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ModelDataModel{}).Where("base_file_id = ?", id).
			Update("base_file_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&ModelDataModel{}).Where("annotation_file_id = ?", id).
			Update("annotation_file_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&FileModel{}, "id = ?", id).Error
	})
}

var _ Store = (*GormStore)(nil)
