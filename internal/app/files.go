package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"annotator3d/pkg/domain"
	"annotator3d/pkg/storage"
)

const uploadContentType = "application/zip"

// Upload carries one incoming file: the declared filename, declared size in
// bytes (negative when unknown), the client's format string and the content.
type Upload struct {
	Filename string
	Size     int64
	Format   string
	Body     io.Reader
}

// validateUpload enforces the declared-size and exact-filename rules before
// anything is written.
func (a *App) validateUpload(up Upload, expectedName string) error {
	if up.Size < 0 {
		return ErrFileSizeUnknown
	}
	if up.Size >= a.maxFileBytes {
		return ErrFileTooLarge
	}
	if up.Filename != expectedName {
		return ErrWrongFileName
	}
	return nil
}

func modelDataDir(md domain.ModelData) string {
	return fmt.Sprintf("projects/%d/%d", md.ProjectID, md.ID)
}

func projectDir(projectID int64) string {
	return fmt.Sprintf("projects/%d", projectID)
}

// UploadBaseFile stores the write-once base file of a ModelData record.
func (a *App) UploadBaseFile(ctx context.Context, actorID, modelDataID int64, up Upload) (domain.ModelData, error) {
	md, err := a.GetModelDataAuthorized(actorID, modelDataID)
	if err != nil {
		return domain.ModelData{}, err
	}
	if md.BaseFile != nil {
		return domain.ModelData{}, ErrBaseFileExists
	}
	if err := a.validateUpload(up, domain.BaseFileName); err != nil {
		return domain.ModelData{}, err
	}

	key := modelDataDir(md) + "/" + domain.BaseFileName
	f, err := a.createFile(ctx, key, up, actorID)
	if err != nil {
		return domain.ModelData{}, err
	}
	if err := a.store.SetBaseFile(md.ID, f.ID); err != nil {
		return domain.ModelData{}, fmt.Errorf("attach base file: %w", err)
	}
	return a.refetchModelData(md.ID)
}

// UploadAnnotationFile stores or replaces the annotation file. Only the lock
// holder may write while the record is locked; the project owner gets no
// bypass here. Replacement overwrites the blob at the same key, so there is
// no window with the old blob gone and the new one missing.
func (a *App) UploadAnnotationFile(ctx context.Context, actorID, modelDataID int64, up Upload) (domain.ModelData, error) {
	md, err := a.GetModelDataAuthorized(actorID, modelDataID)
	if err != nil {
		return domain.ModelData{}, err
	}
	project, err := a.projectForEntity(md)
	if err != nil {
		return domain.ModelData{}, err
	}
	if err := CheckLock(md, project, actorID, false); err != nil {
		return domain.ModelData{}, err
	}
	if err := a.validateUpload(up, domain.AnnotationFileName); err != nil {
		return domain.ModelData{}, err
	}

	key := modelDataDir(md) + "/" + domain.AnnotationFileName
	if md.AnnotationFile != nil {
		if err := a.replaceFile(ctx, *md.AnnotationFile, up, actorID); err != nil {
			return domain.ModelData{}, err
		}
		return a.refetchModelData(md.ID)
	}
	f, err := a.createFile(ctx, key, up, actorID)
	if err != nil {
		return domain.ModelData{}, err
	}
	if err := a.store.SetAnnotationFile(md.ID, f.ID); err != nil {
		return domain.ModelData{}, fmt.Errorf("attach annotation file: %w", err)
	}
	return a.refetchModelData(md.ID)
}

// createFile writes the blob, then the record. A failed record insert deletes
// the blob again so the two stay consistent.
func (a *App) createFile(ctx context.Context, key string, up Upload, uploaderID int64) (domain.File, error) {
	uploader, err := a.GetUser(uploaderID)
	if err != nil {
		return domain.File{}, err
	}
	if err := a.objects.Put(ctx, key, up.Body, up.Size, uploadContentType); err != nil {
		return domain.File{}, fmt.Errorf("store blob: %w", err)
	}
	f, err := a.store.CreateFile(domain.File{
		StorageKey: key,
		FileFormat: up.Format,
		UploadDate: time.Now().UTC(),
		UploadedBy: &uploader,
	})
	if err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.File{}, fmt.Errorf("create file record: %w", err)
	}
	return f, nil
}

// replaceFile overwrites the blob in place and updates the record.
func (a *App) replaceFile(ctx context.Context, existing domain.File, up Upload, uploaderID int64) error {
	uploader, err := a.GetUser(uploaderID)
	if err != nil {
		return err
	}
	if err := a.objects.Put(ctx, existing.StorageKey, up.Body, up.Size, uploadContentType); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}
	existing.FileFormat = up.Format
	existing.UploadDate = time.Now().UTC()
	existing.UploadedBy = &uploader
	if err := a.store.UpdateFile(existing); err != nil {
		return fmt.Errorf("update file record: %w", err)
	}
	return nil
}

// OpenBaseFile streams the base file blob. Missing slot or blob reads as not
// found.
func (a *App) OpenBaseFile(ctx context.Context, actorID, modelDataID int64) (io.ReadCloser, int64, error) {
	md, err := a.GetModelDataAuthorized(actorID, modelDataID)
	if err != nil {
		return nil, 0, err
	}
	return a.openFileSlot(ctx, md.BaseFile)
}

// OpenAnnotationFile streams the annotation file blob.
func (a *App) OpenAnnotationFile(ctx context.Context, actorID, modelDataID int64) (io.ReadCloser, int64, error) {
	md, err := a.GetModelDataAuthorized(actorID, modelDataID)
	if err != nil {
		return nil, 0, err
	}
	return a.openFileSlot(ctx, md.AnnotationFile)
}

func (a *App) openFileSlot(ctx context.Context, f *domain.File) (io.ReadCloser, int64, error) {
	if f == nil {
		return nil, 0, ErrNotFound
	}
	rc, size, err := a.objects.Open(ctx, f.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open blob: %w", err)
	}
	return rc, size, nil
}

// DeleteModelDataFiles removes both file records and blobs of a ModelData,
// its storage directory, and the parent project directory once nothing else
// lives in it.
func (a *App) DeleteModelDataFiles(ctx context.Context, md domain.ModelData) error {
	for _, f := range []*domain.File{md.AnnotationFile, md.BaseFile} {
		if f == nil {
			continue
		}
		if err := a.DeleteFileBlob(ctx, *f); err != nil {
			return err
		}
		if err := a.store.DeleteFile(f.ID); err != nil {
			return fmt.Errorf("delete file record: %w", err)
		}
	}
	if err := a.objects.RemoveDir(ctx, modelDataDir(md)); err != nil {
		return fmt.Errorf("remove model data directory: %w", err)
	}
	dirs, files, err := a.objects.ListDir(ctx, projectDir(md.ProjectID))
	if err != nil {
		return fmt.Errorf("list project directory: %w", err)
	}
	if len(dirs) == 0 && len(files) == 0 {
		if err := a.objects.RemoveDir(ctx, projectDir(md.ProjectID)); err != nil {
			return fmt.Errorf("remove project directory: %w", err)
		}
	}
	return nil
}

// DeleteFileBlob removes the blob behind a file record. An already-missing
// blob is not an error.
func (a *App) DeleteFileBlob(ctx context.Context, f domain.File) error {
	if err := a.objects.Delete(ctx, f.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
