// Package uploads is the dashboard's small file manager: standalone files
// stored in the blob store's files area next to full application deploys.
package uploads

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/skydeck-host/skydeck/internal/app/blobstore"
	"github.com/skydeck-host/skydeck/internal/app/domain/upload"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// Service manages standalone uploaded files.
type Service struct {
	files storage.FileStore
	blobs *blobstore.Store
	log   *logger.Logger
}

// New constructs an uploads service.
func New(files storage.FileStore, blobs *blobstore.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("uploads")
	}
	return &Service{files: files, blobs: blobs, log: log}
}

// Save stores a file's bytes and persists its record. The stored name is the
// sanitized original; the content type comes from the extension, falling back
// to sniffing the content.
func (s *Service) Save(ctx context.Context, tenantID, filename string, content []byte) (upload.File, error) {
	if len(content) == 0 {
		return upload.File{}, apperrors.MissingUpload()
	}
	if filename == "" {
		return upload.File{}, apperrors.Validation("upload filename is required")
	}

	id := uuid.NewString()
	name := blobstore.SanitizeFilename(filename)

	path, err := s.blobs.SaveFile(id, name, content)
	if err != nil {
		return upload.File{}, apperrors.Storage("store uploaded file", err)
	}

	record, err := s.files.CreateFile(ctx, upload.File{
		ID:          id,
		TenantID:    tenantID,
		Name:        name,
		Path:        path,
		SizeBytes:   int64(len(content)),
		ContentType: detectContentType(name, content),
	})
	if err != nil {
		if removeErr := s.blobs.RemoveFile(path); removeErr != nil {
			s.log.WithError(removeErr).Warnf("remove orphaned file %s", path)
		}
		return upload.File{}, apperrors.Storage("persist file record", err)
	}

	s.log.WithField("file_id", record.ID).Infof("stored file %q (%d bytes)", name, len(content))
	return record, nil
}

// Get returns one file record.
func (s *Service) Get(ctx context.Context, id string) (upload.File, error) {
	f, err := s.files.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return upload.File{}, apperrors.NotFound("file", id)
		}
		return upload.File{}, apperrors.Storage("load file", err)
	}
	return f, nil
}

// List returns a tenant's files, or all files when tenantID is empty.
func (s *Service) List(ctx context.Context, tenantID string) ([]upload.File, error) {
	files, err := s.files.ListFiles(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Storage("list files", err)
	}
	return files, nil
}

// Open returns the record and a reader over the stored bytes. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id string) (upload.File, *os.File, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return upload.File{}, nil, err
	}
	f, err := os.Open(record.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return upload.File{}, nil, apperrors.NotFound("file content", id)
		}
		return upload.File{}, nil, apperrors.Storage("open file", err)
	}
	return record, f, nil
}

// Delete removes the record, then the bytes. The record is authoritative;
// byte-removal failures are logged only.
func (s *Service) Delete(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.files.DeleteFile(ctx, id); err != nil {
		return apperrors.Storage("delete file record", err)
	}
	if err := s.blobs.RemoveFile(record.Path); err != nil {
		s.log.WithError(err).Warnf("remove bytes for file %s", id)
	}
	return nil
}

func detectContentType(name string, content []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(content)
}
