package store

import (
	"time"

	"annotator3d/pkg/domain"
)

// GORM models used for persistence. Deletion rules mirror the domain:
// projects cascade from their owner, labels and model data cascade from their
// project, lock/uploader/file references null out.

type UserModel struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"size:150;uniqueIndex;not null"`
	Email        string    `gorm:"size:254;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type ProjectModel struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null"`
	Description string `gorm:"size:1000"`
	CreatedAt   time.Time `gorm:"not null;index"`
	OwnerID     int64     `gorm:"not null;index"`
	Owner       UserModel `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	Members     []UserModel `gorm:"many2many:project_members;constraint:OnDelete:CASCADE"`
}

type LabelModel struct {
	ID              int64  `gorm:"primaryKey"`
	Name            string `gorm:"size:100;not null"`
	AnnotationClass int    `gorm:"not null;uniqueIndex:idx_labels_project_class"`
	Color           int    `gorm:"not null"`
	ProjectID       int64  `gorm:"not null;index;uniqueIndex:idx_labels_project_class"`
	Project         ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

type FileModel struct {
	ID           int64     `gorm:"primaryKey"`
	StorageKey   string    `gorm:"size:512;not null"`
	FileFormat   string    `gorm:"size:10;not null"`
	UploadDate   time.Time `gorm:"not null"`
	UploadedByID *int64    `gorm:"index"`
	UploadedBy   *UserModel `gorm:"foreignKey:UploadedByID;constraint:OnDelete:SET NULL"`
}

type ModelDataModel struct {
	ID               int64  `gorm:"primaryKey"`
	Name             string `gorm:"size:100;not null"`
	ModelType        string `gorm:"size:100;not null"`
	AnnotationType   string `gorm:"size:100;not null"`
	ProjectID        int64  `gorm:"not null;index"`
	Project          ProjectModel `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	OwnerID          int64     `gorm:"not null;index"`
	Owner            UserModel `gorm:"foreignKey:OwnerID"`
	LockedByID       *int64     `gorm:"index"`
	LockedBy         *UserModel `gorm:"foreignKey:LockedByID;constraint:OnDelete:SET NULL"`
	BaseFileID       *int64
	BaseFile         *FileModel `gorm:"foreignKey:BaseFileID;constraint:OnDelete:SET NULL"`
	AnnotationFileID *int64
	AnnotationFile   *FileModel `gorm:"foreignKey:AnnotationFileID;constraint:OnDelete:SET NULL"`
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func fileFromModel(m *FileModel) *domain.File {
	if m == nil {
		return nil
	}
	f := &domain.File{
		ID:         m.ID,
		StorageKey: m.StorageKey,
		FileFormat: m.FileFormat,
		UploadDate: m.UploadDate,
	}
	if m.UploadedBy != nil {
		u := userFromModel(*m.UploadedBy)
		f.UploadedBy = &u
	}
	return f
}

func labelFromModel(m LabelModel) domain.Label {
	return domain.Label{
		ID:              m.ID,
		Name:            m.Name,
		AnnotationClass: m.AnnotationClass,
		Color:           m.Color,
		ProjectID:       m.ProjectID,
	}
}

func modelDataFromModel(m ModelDataModel) domain.ModelData {
	md := domain.ModelData{
		ID:             m.ID,
		Name:           m.Name,
		ModelType:      m.ModelType,
		AnnotationType: m.AnnotationType,
		ProjectID:      m.ProjectID,
		Owner:          userFromModel(m.Owner),
		BaseFile:       fileFromModel(m.BaseFile),
		AnnotationFile: fileFromModel(m.AnnotationFile),
	}
	if m.LockedBy != nil {
		u := userFromModel(*m.LockedBy)
		md.LockedBy = &u
	}
	return md
}

func projectFromModel(m ProjectModel, modelData []ModelDataModel, labels []LabelModel) domain.Project {
	p := domain.Project{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		Owner:       userFromModel(m.Owner),
	}
	for _, member := range m.Members {
		p.Members = append(p.Members, userFromModel(member))
	}
	for _, md := range modelData {
		p.ModelData = append(p.ModelData, modelDataFromModel(md))
	}
	for _, l := range labels {
		p.Labels = append(p.Labels, labelFromModel(l))
	}
	return p
}
