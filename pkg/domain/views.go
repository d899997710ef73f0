package domain

import "time"

// Wire views returned by the HTTP API. Field names follow the public API
// contract, which predates this implementation.

type UserView struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type UserDetailView struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// FileView reports blob metadata. FileSize is read from the blob store at
// render time, not persisted.
type FileView struct {
	FileFormat string    `json:"fileFormat"`
	UploadDate time.Time `json:"uploadDate"`
	FileSize   int64     `json:"fileSize"`
	UploadedBy *UserView `json:"uploaded_by"`
}

type LabelView struct {
	LabelID         int64  `json:"label_id"`
	AnnotationClass int    `json:"annotationClass"`
	Name            string `json:"name"`
	Color           int    `json:"color"`
}

type ModelDataView struct {
	ModelDataID    int64     `json:"modelData_id"`
	Owner          UserView  `json:"owner"`
	Name           string    `json:"name"`
	ModelType      string    `json:"modelType"`
	AnnotationType string    `json:"annotationType"`
	BaseFile       *FileView `json:"baseFile"`
	AnnotationFile *FileView `json:"annotationFile"`
	Locked         *UserView `json:"locked"`
	ProjectID      int64     `json:"project_id"`
}

// ProjectSummaryView is the reduced representation used by project listings.
type ProjectSummaryView struct {
	ProjectID   int64     `json:"project_id"`
	Owner       UserView  `json:"owner"`
	Created     time.Time `json:"created"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// ProjectView is the full representation with members, model data and labels.
type ProjectView struct {
	ProjectSummaryView
	Users     []UserView      `json:"users"`
	ModelData []ModelDataView `json:"modelData"`
	Labels    []LabelView     `json:"labels"`
}

// SessionView is returned by login: a bearer token plus its expiry timestamp.
type SessionView struct {
	Expiry time.Time `json:"expiry"`
	Token  string    `json:"token"`
}

func (u User) View() UserView {
	return UserView{UserID: u.ID, Username: u.Username}
}

func (u User) DetailView() UserDetailView {
	return UserDetailView{UserID: u.ID, Username: u.Username, Email: u.Email}
}

func (l Label) View() LabelView {
	return LabelView{LabelID: l.ID, AnnotationClass: l.AnnotationClass, Name: l.Name, Color: l.Color}
}
