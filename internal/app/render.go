package app

import (
	"context"
	"fmt"

	"annotator3d/pkg/domain"
)

// fileView builds the wire view of a file slot. The blob size is read from
// the object store at render time; a missing blob surfaces as
// storage.ErrNotFound so renderWithRetry can take another pass.
func (a *App) fileView(ctx context.Context, f *domain.File) (*domain.FileView, error) {
	if f == nil {
		return nil, nil
	}
	size, err := a.objects.Stat(ctx, f.StorageKey)
	if err != nil {
		return nil, err
	}
	view := domain.FileView{
		FileFormat: f.FileFormat,
		UploadDate: f.UploadDate,
		FileSize:   size,
	}
	if f.UploadedBy != nil {
		uv := f.UploadedBy.View()
		view.UploadedBy = &uv
	}
	return &view, nil
}

func (a *App) modelDataView(ctx context.Context, md domain.ModelData) (domain.ModelDataView, error) {
	base, err := a.fileView(ctx, md.BaseFile)
	if err != nil {
		return domain.ModelDataView{}, err
	}
	annotation, err := a.fileView(ctx, md.AnnotationFile)
	if err != nil {
		return domain.ModelDataView{}, err
	}
	view := domain.ModelDataView{
		ModelDataID:    md.ID,
		Owner:          md.Owner.View(),
		Name:           md.Name,
		ModelType:      md.ModelType,
		AnnotationType: md.AnnotationType,
		BaseFile:       base,
		AnnotationFile: annotation,
		ProjectID:      md.ProjectID,
	}
	if md.LockedBy != nil {
		lv := md.LockedBy.View()
		view.Locked = &lv
	}
	return view, nil
}

func projectSummaryView(p domain.Project) domain.ProjectSummaryView {
	return domain.ProjectSummaryView{
		ProjectID:   p.ID,
		Owner:       p.Owner.View(),
		Created:     p.CreatedAt,
		Name:        p.Name,
		Description: p.Description,
	}
}

func (a *App) projectView(ctx context.Context, p domain.Project) (domain.ProjectView, error) {
	view := domain.ProjectView{
		ProjectSummaryView: projectSummaryView(p),
		Users:              make([]domain.UserView, 0, len(p.Members)),
		ModelData:          make([]domain.ModelDataView, 0, len(p.ModelData)),
		Labels:             make([]domain.LabelView, 0, len(p.Labels)),
	}
	for _, m := range p.Members {
		view.Users = append(view.Users, m.View())
	}
	for _, md := range p.ModelData {
		mdView, err := a.modelDataView(ctx, md)
		if err != nil {
			return domain.ProjectView{}, err
		}
		view.ModelData = append(view.ModelData, mdView)
	}
	for _, l := range p.Labels {
		view.Labels = append(view.Labels, l.View())
	}
	return view, nil
}

// RenderModelData serializes one ModelData record, refetching between retry
// attempts when a referenced blob momentarily disappears.
func (a *App) RenderModelData(ctx context.Context, id int64) (domain.ModelDataView, error) {
	return renderWithRetry(func() (domain.ModelDataView, error) {
		md, err := a.refetchModelData(id)
		if err != nil {
			return domain.ModelDataView{}, err
		}
		return a.modelDataView(ctx, md)
	})
}

// RenderModelDataList serializes the filtered ModelData listing.
func (a *App) RenderModelDataList(ctx context.Context, actorID int64, projectID, userID *int64) ([]domain.ModelDataView, error) {
	return renderWithRetry(func() ([]domain.ModelDataView, error) {
		records, err := a.ListModelData(actorID, projectID, userID)
		if err != nil {
			return nil, err
		}
		views := make([]domain.ModelDataView, 0, len(records))
		for _, md := range records {
			view, err := a.modelDataView(ctx, md)
			if err != nil {
				return nil, err
			}
			views = append(views, view)
		}
		return views, nil
	})
}

// RenderProject serializes one project with members, model data and labels.
func (a *App) RenderProject(ctx context.Context, id int64) (domain.ProjectView, error) {
	return renderWithRetry(func() (domain.ProjectView, error) {
		p, found, err := a.store.GetProject(id)
		if err != nil {
			return domain.ProjectView{}, fmt.Errorf("get project: %w", err)
		}
		if !found {
			return domain.ProjectView{}, ErrNotFound
		}
		return a.projectView(ctx, p)
	})
}

// RenderProjectList serializes the caller's project listing. Listings use the
// reduced summary view, which reads no blobs.
func (a *App) RenderProjectList(actorID int64, userID *int64) ([]domain.ProjectSummaryView, error) {
	projects, err := a.ListProjectsForUser(actorID, userID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ProjectSummaryView, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectSummaryView(p))
	}
	return views, nil
}
