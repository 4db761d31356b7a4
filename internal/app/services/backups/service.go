// Package backups creates, lists and restores application snapshots.
// Restores are staged: the archive is unpacked next to the live directory
// and swapped in atomically, so a failed restore never leaves a half
// written application behind.
package backups

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/skydeck-host/skydeck/internal/app/archive"
	"github.com/skydeck-host/skydeck/internal/app/blobstore"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/keylock"
	"github.com/skydeck-host/skydeck/internal/app/metrics"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// ErrMissingDirectory reports that an application's directory is gone. The
// sweeper treats it as a skip, not a failure.
var ErrMissingDirectory = errors.New("application directory missing")

// Service manages application backups.
type Service struct {
	apps   storage.ApplicationStore
	store  storage.BackupStore
	blobs  *blobstore.Store
	locks  *keylock.KeyLock
	events EventRecorder
	log    *logger.Logger
}

// New constructs a backup service.
func New(apps storage.ApplicationStore, store storage.BackupStore, blobs *blobstore.Store, locks *keylock.KeyLock, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("backups")
	}
	return &Service{
		apps:  apps,
		store: store,
		blobs: blobs,
		locks: locks,
		log:   log,
	}
}

// AttachAnalytics wires the recorder used for restore events.
func (s *Service) AttachAnalytics(recorder EventRecorder) {
	s.events = recorder
}

// Create snapshots an application directory into a zip archive and persists
// the descriptor. The application's directory mutations are locked for the
// duration of the compression.
func (s *Service) Create(ctx context.Context, applicationID string, trigger backup.Trigger) (backup.Backup, error) {
	start := time.Now()
	b, err := s.create(ctx, applicationID, trigger)
	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil:
		metrics.RecordBackup(string(trigger), "success", elapsed)
	case errors.Is(err, ErrMissingDirectory):
		metrics.RecordBackup(string(trigger), "skipped", elapsed)
	default:
		metrics.RecordBackup(string(trigger), "failure", elapsed)
	}
	return b, err
}

func (s *Service) create(ctx context.Context, applicationID string, trigger backup.Trigger) (backup.Backup, error) {
	unlock := s.locks.Lock(applicationID)
	defer unlock()

	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return backup.Backup{}, apperrors.NotFound("application", applicationID)
		}
		return backup.Backup{}, apperrors.Storage("load application", err)
	}

	exists, err := s.blobs.AppDirExists(applicationID)
	if err != nil {
		return backup.Backup{}, apperrors.Storage("probe application directory", err)
	}
	if !exists {
		return backup.Backup{}, apperrors.Storage("application directory missing", ErrMissingDirectory).
			WithDetails("application_id", applicationID)
	}

	backupID := uuid.NewString()
	path, err := s.blobs.BackupPath(applicationID, backupID)
	if err != nil {
		return backup.Backup{}, apperrors.Storage("prepare backup path", err)
	}

	size, err := archive.Compress(ctx, s.blobs.AppDir(applicationID), path)
	if err != nil {
		return backup.Backup{}, apperrors.Storage("compress application directory", err)
	}

	record, err := s.store.CreateBackup(ctx, backup.Backup{
		ID:            backupID,
		ApplicationID: applicationID,
		Path:          path,
		SizeBytes:     size,
		Trigger:       trigger,
	})
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			s.log.WithError(removeErr).Warnf("remove orphaned archive %s", path)
		}
		return backup.Backup{}, apperrors.Storage("persist backup", err)
	}

	s.log.WithField("application_id", applicationID).
		Infof("backup %s created for %q (%d bytes, trigger %s)", record.ID, app.Name, size, trigger)
	return record, nil
}

// List returns an application's backups, newest first. The application must
// exist.
func (s *Service) List(ctx context.Context, applicationID string) ([]backup.Backup, error) {
	if _, err := s.apps.GetApplication(ctx, applicationID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("application", applicationID)
		}
		return nil, apperrors.Storage("load application", err)
	}
	items, err := s.store.ListBackups(ctx, applicationID)
	if err != nil {
		return nil, apperrors.Storage("list backups", err)
	}
	return items, nil
}

// Restore replaces an application's directory with the content of one of
// its backups using a staged extract and an atomic swap.
func (s *Service) Restore(ctx context.Context, applicationID, backupID string) (application.Application, error) {
	app, err := s.restore(ctx, applicationID, backupID)
	if err != nil {
		metrics.RecordRestore("failure")
		return application.Application{}, err
	}
	metrics.RecordRestore("success")
	return app, nil
}

func (s *Service) restore(ctx context.Context, applicationID, backupID string) (application.Application, error) {
	unlock := s.locks.Lock(applicationID)
	defer unlock()

	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return application.Application{}, apperrors.NotFound("application", applicationID)
		}
		return application.Application{}, apperrors.Storage("load application", err)
	}

	b, err := s.store.GetBackup(ctx, backupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return application.Application{}, apperrors.NotFound("backup", backupID)
		}
		return application.Application{}, apperrors.Storage("load backup", err)
	}
	if b.ApplicationID != applicationID {
		return application.Application{}, apperrors.Validation("backup belongs to a different application").
			WithDetails("backup_id", backupID)
	}
	if _, err := os.Stat(b.Path); err != nil {
		return application.Application{}, apperrors.Storage("backup archive unavailable", err)
	}

	staged, err := s.blobs.NewStagingDir()
	if err != nil {
		return application.Application{}, apperrors.Storage("prepare staging directory", err)
	}

	if _, err := archive.ExtractFile(ctx, b.Path, staged); err != nil {
		s.removeStaging(staged)
		return application.Application{}, apperrors.Storage("unpack backup archive", err)
	}
	if err := s.blobs.SwapAppDir(applicationID, staged); err != nil {
		s.removeStaging(staged)
		return application.Application{}, apperrors.Storage("swap in restored directory", err)
	}

	s.log.WithField("application_id", applicationID).
		Infof("restored %q from backup %s", app.Name, backupID)
	s.afterRestore(app, backupID)
	return app, nil
}

func (s *Service) afterRestore(app application.Application, backupID string) {
	if s.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.events.RecordRestore(ctx, app, backupID); err != nil {
			s.log.WithError(err).Warnf("record restore event for %s", app.ID)
		}
	}()
}

func (s *Service) removeStaging(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.WithError(err).Warnf("remove staging directory %s", dir)
	}
}

// EventRecorder persists restore events.
type EventRecorder interface {
	RecordRestore(ctx context.Context, app application.Application, backupID string) error
}
