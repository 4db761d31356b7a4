// Package deployments implements the deployment workflow: uploads become
// extracted application directories with a unique synthetic domain and a
// persisted metadata record.
package deployments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/skydeck-host/skydeck/internal/app/archive"
	"github.com/skydeck-host/skydeck/internal/app/blobstore"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domains"
	"github.com/skydeck-host/skydeck/internal/app/keylock"
	"github.com/skydeck-host/skydeck/internal/app/metrics"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// Upload is the raw uploaded payload.
type Upload struct {
	Filename string
	Content  []byte
}

// Requester identifies who asked for a deployment, for the analytics trail.
type Requester struct {
	IP        string
	UserAgent string
}

// DeployInput carries everything one deployment needs.
type DeployInput struct {
	TenantID     string
	Kind         application.Kind
	Name         string
	Description  string
	Public       bool
	StartCommand string
	Port         int
	Manifest     []byte // optional caller-supplied package.json (nodejs)
	Upload       Upload
	Requester    Requester
}

// Service manages application deployments and lifecycle.
type Service struct {
	apps      storage.ApplicationStore
	blobs     *blobstore.Store
	alloc     *domains.Allocator
	locks     *keylock.KeyLock
	urlScheme string
	installer Installer
	backups   BackupRunner
	events    EventRecorder
	log       *logger.Logger
}

// New constructs a deployment service. urlScheme is used to build the
// routable URL stored on each application.
func New(apps storage.ApplicationStore, blobs *blobstore.Store, alloc *domains.Allocator, locks *keylock.KeyLock, urlScheme string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("deployments")
	}
	if urlScheme == "" {
		urlScheme = "https"
	}
	return &Service{
		apps:      apps,
		blobs:     blobs,
		alloc:     alloc,
		locks:     locks,
		urlScheme: urlScheme,
		log:       log,
	}
}

// AttachInstaller injects the dependency installer used for nodejs deploys.
func (s *Service) AttachInstaller(installer Installer) {
	s.installer = installer
}

// AttachBackups wires the runner used for the post-deploy initial backup.
func (s *Service) AttachBackups(runner BackupRunner) {
	s.backups = runner
}

// AttachAnalytics wires the recorder used for deploy events.
func (s *Service) AttachAnalytics(recorder EventRecorder) {
	s.events = recorder
}

// Deploy runs the full workflow. The returned record includes the allocated
// domain and the directory the application is served from.
func (s *Service) Deploy(ctx context.Context, input DeployInput) (application.Application, error) {
	start := time.Now()
	app, err := s.deploy(ctx, input)
	if err != nil {
		metrics.RecordDeployment(string(input.Kind), "failure", time.Since(start).Seconds())
		return application.Application{}, err
	}
	metrics.RecordDeployment(string(app.Kind), "success", time.Since(start).Seconds())
	return app, nil
}

func (s *Service) deploy(ctx context.Context, input DeployInput) (application.Application, error) {
	if err := validateInput(input); err != nil {
		return application.Application{}, err
	}

	id := uuid.NewString()

	domain, err := s.alloc.Allocate(ctx, input.Name)
	if err != nil {
		return application.Application{}, apperrors.Storage("allocate domain", err)
	}

	dir, err := s.blobs.CreateAppDir(id)
	if err != nil {
		return application.Application{}, apperrors.Storage("create application directory", err)
	}

	if err := s.materialize(ctx, dir, input.Upload); err != nil {
		s.removeAppDir(id)
		return application.Application{}, err
	}

	if input.Kind == application.KindNodeJS {
		if err := s.ensureManifest(dir, input); err != nil {
			s.removeAppDir(id)
			return application.Application{}, err
		}
		if s.installer != nil {
			if err := s.installer.Install(ctx, dir); err != nil {
				// Dependency resolution is best effort: the manifest is in
				// place and the deployment proceeds.
				s.log.WithError(err).WithField("application_id", id).
					Warnf("dependency resolution failed for %s", domain)
			}
		}
	}

	port := input.Port
	if input.Kind != application.KindNodeJS {
		port = 0
	}
	record := application.Application{
		ID:           id,
		TenantID:     input.TenantID,
		Name:         input.Name,
		Kind:         input.Kind,
		Domain:       domain,
		Path:         dir,
		URL:          fmt.Sprintf("%s://%s", s.urlScheme, domain),
		Status:       application.StatusRunning,
		Port:         port,
		StartCommand: input.StartCommand,
		Description:  input.Description,
		Public:       input.Public,
	}

	created, err := s.apps.CreateApplication(ctx, record)
	if err != nil {
		s.removeAppDir(id)
		if errors.Is(err, storage.ErrDomainTaken) {
			return application.Application{}, apperrors.DomainCollision(domain)
		}
		return application.Application{}, apperrors.Storage("persist application", err)
	}

	s.log.WithField("application_id", created.ID).
		Infof("deployed %s application %q at %s", created.Kind, created.Name, created.Domain)
	s.afterDeploy(created, input.Requester)
	return created, nil
}

// afterDeploy dispatches the post-persist work off the request path: the
// deploy event and the initial backup.
func (s *Service) afterDeploy(app application.Application, req Requester) {
	if s.events != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.events.RecordDeploy(ctx, app, req.IP, req.UserAgent); err != nil {
				s.log.WithError(err).Warnf("record deploy event for %s", app.ID)
			}
		}()
	}
	if s.backups != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := s.backups.Create(ctx, app.ID, backup.TriggerDeploy); err != nil {
				s.log.WithError(err).Warnf("initial backup for %s", app.ID)
			}
		}()
	}
}

func validateInput(input DeployInput) error {
	if input.Kind != application.KindHTML && input.Kind != application.KindNodeJS {
		return apperrors.Validation("kind must be html or nodejs")
	}
	if len(input.Upload.Content) == 0 {
		return apperrors.MissingUpload()
	}
	if input.Upload.Filename == "" {
		return apperrors.Validation("upload filename is required")
	}
	if input.Port < 0 || input.Port > 65535 {
		return apperrors.Validation("port must be between 0 and 65535")
	}
	if len(input.Manifest) > 0 && !gjson.ValidBytes(input.Manifest) {
		return apperrors.Validation("manifest must be valid JSON")
	}
	return nil
}

// materialize writes the upload into the application directory: zip archives
// are extracted, anything else is stored as a single sanitized file.
func (s *Service) materialize(ctx context.Context, dir string, upload Upload) error {
	if archive.IsZipName(upload.Filename) {
		if _, err := archive.Extract(ctx, upload.Content, dir); err != nil {
			return apperrors.InvalidArchive(err)
		}
		return nil
	}
	name := blobstore.SanitizeFilename(upload.Filename)
	if err := os.WriteFile(filepath.Join(dir, name), upload.Content, 0o644); err != nil {
		return apperrors.Storage("store uploaded file", err)
	}
	return nil
}

// ensureManifest guarantees a package.json exists for nodejs applications:
// a caller-supplied manifest wins, an extracted one is kept, otherwise a
// minimal manifest is synthesized.
func (s *Service) ensureManifest(dir string, input DeployInput) error {
	manifestPath := filepath.Join(dir, "package.json")

	if len(input.Manifest) > 0 {
		if err := os.WriteFile(manifestPath, input.Manifest, 0o644); err != nil {
			return apperrors.Storage("write manifest", err)
		}
		return nil
	}
	if _, err := os.Stat(manifestPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return apperrors.Storage("probe manifest", err)
	}

	startCommand := input.StartCommand
	if startCommand == "" {
		startCommand = "node index.js"
	}
	manifest := map[string]any{
		"name":    domains.Slugify(input.Name),
		"version": "1.0.0",
		"scripts": map[string]string{"start": startCommand},
		"engines": map[string]string{"node": ">=16"},
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return apperrors.Internal("encode manifest", err)
	}
	if err := os.WriteFile(manifestPath, encoded, 0o644); err != nil {
		return apperrors.Storage("write manifest", err)
	}
	return nil
}

func (s *Service) removeAppDir(id string) {
	if err := s.blobs.RemoveAppDir(id); err != nil {
		s.log.WithError(err).Warnf("clean up directory for %s", id)
	}
}

// Get retrieves an application by identifier.
func (s *Service) Get(ctx context.Context, id string) (application.Application, error) {
	app, err := s.apps.GetApplication(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return application.Application{}, apperrors.NotFound("application", id)
		}
		return application.Application{}, apperrors.Storage("load application", err)
	}
	return app, nil
}

// List returns applications for a tenant, or all when tenantID is empty.
func (s *Service) List(ctx context.Context, tenantID string) ([]application.Application, error) {
	apps, err := s.apps.ListApplications(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Storage("list applications", err)
	}
	return apps, nil
}

// Delete removes the metadata record, then the application directory. The
// record is authoritative: once it is gone the deployment no longer exists,
// and directory cleanup failures are only logged. Backup records and
// archives reference the application softly and survive the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	app, err := s.apps.GetApplication(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("application", id)
		}
		return apperrors.Storage("load application", err)
	}

	if err := s.apps.DeleteApplication(ctx, id); err != nil {
		return apperrors.Storage("delete application", err)
	}
	if err := s.blobs.RemoveAppDir(id); err != nil {
		s.log.WithError(err).Warnf("remove directory for %s", id)
	}

	s.log.Infof("application %q (%s) deleted", app.Name, id)
	return nil
}

// SetStatus flips an application between running and stopped. This is
// record keeping only; no process is started or stopped.
func (s *Service) SetStatus(ctx context.Context, id string, status application.Status) (application.Application, error) {
	if status != application.StatusRunning && status != application.StatusStopped {
		return application.Application{}, apperrors.Validation("status must be running or stopped")
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return application.Application{}, err
	}
	if app.Status == status {
		return app, nil
	}

	app.Status = status
	updated, err := s.apps.UpdateApplication(ctx, app)
	if err != nil {
		return application.Application{}, apperrors.Storage("update application status", err)
	}
	s.log.Infof("application %s is now %s", id, status)
	return updated, nil
}

// Installer resolves nodejs dependencies inside an application directory.
type Installer interface {
	Install(ctx context.Context, dir string) error
}

// BackupRunner creates a backup for an application.
type BackupRunner interface {
	Create(ctx context.Context, applicationID string, trigger backup.Trigger) (backup.Backup, error)
}

// EventRecorder persists deploy events.
type EventRecorder interface {
	RecordDeploy(ctx context.Context, app application.Application, ip, userAgent string) error
}
