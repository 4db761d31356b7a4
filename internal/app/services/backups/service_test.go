package backups

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skydeck-host/skydeck/internal/app/blobstore"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/keylock"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	"github.com/skydeck-host/skydeck/internal/app/storage/memory"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
)

func newService(t *testing.T) (*Service, *memory.Store, *blobstore.Store) {
	t.Helper()
	store := memory.New()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore: %v", err)
	}
	return New(store, store, blobs, keylock.New(), nil), store, blobs
}

func seedApp(t *testing.T, store *memory.Store, blobs *blobstore.Store, name string, status application.Status, withDir bool) application.Application {
	t.Helper()
	app, err := store.CreateApplication(context.Background(), application.Application{
		Name:   name,
		Kind:   application.KindHTML,
		Domain: name + ".skydeck.site",
		Status: status,
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if withDir {
		dir, err := blobs.CreateAppDir(app.ID)
		if err != nil {
			t.Fatalf("create app dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("content of "+name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return app
}

func TestCreateBackup(t *testing.T) {
	svc, store, blobs := newService(t)
	app := seedApp(t, store, blobs, "snapshooter", application.StatusRunning, true)

	b, err := svc.Create(context.Background(), app.ID, backup.TriggerManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.SizeBytes <= 0 {
		t.Fatalf("size = %d, want > 0", b.SizeBytes)
	}
	if b.Trigger != backup.TriggerManual {
		t.Fatalf("trigger = %q", b.Trigger)
	}
	if _, err := os.Stat(b.Path); err != nil {
		t.Fatalf("archive missing: %v", err)
	}

	list, err := svc.List(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCreateBackupMissingApplication(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Create(context.Background(), "missing", backup.TriggerManual)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCreateBackupMissingDirectory(t *testing.T) {
	svc, store, blobs := newService(t)
	app := seedApp(t, store, blobs, "dirless", application.StatusRunning, false)

	_, err := svc.Create(context.Background(), app.ID, backup.TriggerSweep)
	if !errors.Is(err, ErrMissingDirectory) {
		t.Fatalf("expected ErrMissingDirectory, got %v", err)
	}
}

func TestRestoreBringsContentBack(t *testing.T) {
	svc, store, blobs := newService(t)
	app := seedApp(t, store, blobs, "rollback", application.StatusRunning, true)
	ctx := context.Background()

	b, err := svc.Create(ctx, app.ID, backup.TriggerManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	entry := filepath.Join(blobs.AppDir(app.ID), "index.html")
	if err := os.WriteFile(entry, []byte("broken deployment"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if _, err := svc.Restore(ctx, app.ID, b.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := os.ReadFile(entry)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "content of rollback" {
		t.Fatalf("restored content = %q", got)
	}

	staging, err := os.ReadDir(filepath.Join(blobs.Root(), "staging"))
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(staging) != 0 {
		t.Fatalf("staging area should be empty, found %d entries", len(staging))
	}
}

func TestRestoreRejectsForeignBackup(t *testing.T) {
	svc, store, blobs := newService(t)
	victim := seedApp(t, store, blobs, "victim", application.StatusRunning, true)
	other := seedApp(t, store, blobs, "other", application.StatusRunning, true)
	ctx := context.Background()

	b, err := svc.Create(ctx, other.ID, backup.TriggerManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}

	_, err = svc.Restore(ctx, victim.ID, b.ID)
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRestoreMissingBackup(t *testing.T) {
	svc, store, blobs := newService(t)
	app := seedApp(t, store, blobs, "nosnap", application.StatusRunning, true)

	_, err := svc.Restore(context.Background(), app.ID, "missing")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRestoreRecordsEvent(t *testing.T) {
	svc, store, blobs := newService(t)
	app := seedApp(t, store, blobs, "audited", application.StatusRunning, true)
	ctx := context.Background()

	recorder := &recordingEvents{restores: make(chan string, 1)}
	svc.AttachAnalytics(recorder)

	b, err := svc.Create(ctx, app.ID, backup.TriggerManual)
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if _, err := svc.Restore(ctx, app.ID, b.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}

	select {
	case backupID := <-recorder.restores:
		if backupID != b.ID {
			t.Fatalf("event for backup %s, want %s", backupID, b.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("restore event was not recorded")
	}
}

func TestRunSweepIsolatesFailures(t *testing.T) {
	svc, store, blobs := newService(t)
	ctx := context.Background()

	seedApp(t, store, blobs, "healthy-one", application.StatusRunning, true)
	seedApp(t, store, blobs, "healthy-two", application.StatusRunning, true)
	seedApp(t, store, blobs, "gone", application.StatusRunning, false)
	seedApp(t, store, blobs, "paused", application.StatusStopped, true)

	sweeper := NewSweeper(svc, store, "@hourly", 2, time.Millisecond, nil)
	report := sweeper.RunSweep(ctx)

	if report.Total != 3 {
		t.Fatalf("total = %d, want 3 (stopped apps are not swept)", report.Total)
	}
	if report.Succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", report.Succeeded)
	}
	if report.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", report.Skipped)
	}
	if report.Failed != 0 {
		t.Fatalf("failed = %d, want 0", report.Failed)
	}

	count, err := store.CountBackups(ctx)
	if err != nil {
		t.Fatalf("count backups: %v", err)
	}
	if count != 2 {
		t.Fatalf("backups = %d, want 2", count)
	}
}

func TestSweeperRetriesTransientFailures(t *testing.T) {
	store := memory.New()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore: %v", err)
	}
	flaky := &flakyBackupStore{BackupStore: store, failures: 1}
	svc := New(store, flaky, blobs, keylock.New(), nil)

	seedApp(t, store, blobs, "flaky", application.StatusRunning, true)

	sweeper := NewSweeper(svc, store, "@hourly", 3, time.Millisecond, nil)
	report := sweeper.RunSweep(context.Background())

	if report.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1 (after retry)", report.Succeeded)
	}
	if report.Failed != 0 {
		t.Fatalf("failed = %d, want 0", report.Failed)
	}
}

func TestSweeperExhaustsRetries(t *testing.T) {
	store := memory.New()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore: %v", err)
	}
	flaky := &flakyBackupStore{BackupStore: store, failures: 10}
	svc := New(store, flaky, blobs, keylock.New(), nil)

	seedApp(t, store, blobs, "doomed", application.StatusRunning, true)

	sweeper := NewSweeper(svc, store, "@hourly", 2, time.Millisecond, nil)
	report := sweeper.RunSweep(context.Background())

	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed)
	}
	if flaky.calls != 2 {
		t.Fatalf("create attempts = %d, want 2", flaky.calls)
	}
}

func TestSweeperRetriesFailedListing(t *testing.T) {
	store := memory.New()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore: %v", err)
	}
	svc := New(store, store, blobs, keylock.New(), nil)

	seedApp(t, store, blobs, "listed", application.StatusRunning, true)

	flaky := &flakyAppStore{ApplicationStore: store, failures: 1}
	sweeper := NewSweeper(svc, flaky, "@hourly", 3, time.Millisecond, nil)
	report := sweeper.RunSweep(context.Background())

	if flaky.listCalls != 2 {
		t.Fatalf("list attempts = %d, want 2", flaky.listCalls)
	}
	if report.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1 (sweep must survive a transient listing fault)", report.Succeeded)
	}
}

func TestSweeperGivesUpListingAfterRetries(t *testing.T) {
	store := memory.New()
	blobs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore: %v", err)
	}
	svc := New(store, store, blobs, keylock.New(), nil)

	seedApp(t, store, blobs, "unlisted", application.StatusRunning, true)

	flaky := &flakyAppStore{ApplicationStore: store, failures: 10}
	sweeper := NewSweeper(svc, flaky, "@hourly", 2, time.Millisecond, nil)
	report := sweeper.RunSweep(context.Background())

	if flaky.listCalls != 2 {
		t.Fatalf("list attempts = %d, want 2", flaky.listCalls)
	}
	if report.Total != 0 {
		t.Fatalf("total = %d, want 0", report.Total)
	}
}

func TestSweeperFinishesBackupAfterCancel(t *testing.T) {
	svc, store, blobs := newService(t)
	app := seedApp(t, store, blobs, "mid-flight", application.StatusRunning, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled run stops between applications, never mid-backup: the
	// backup under way still runs to completion.
	sweeper := NewSweeper(svc, store, "@hourly", 2, time.Millisecond, nil)
	if err := sweeper.backupWithRetry(ctx, app.ID); err != nil {
		t.Fatalf("backup should complete despite cancellation: %v", err)
	}

	count, err := store.CountBackups(context.Background())
	if err != nil {
		t.Fatalf("count backups: %v", err)
	}
	if count != 1 {
		t.Fatalf("backups = %d, want 1", count)
	}
}

func TestSweeperStartRejectsBadSchedule(t *testing.T) {
	svc, store, _ := newService(t)

	sweeper := NewSweeper(svc, store, "not a schedule", 1, time.Millisecond, nil)
	if err := sweeper.Start(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestSweeperStartStop(t *testing.T) {
	svc, store, _ := newService(t)

	sweeper := NewSweeper(svc, store, "@hourly", 1, time.Millisecond, nil)
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

type recordingEvents struct {
	restores chan string
}

func (r *recordingEvents) RecordRestore(_ context.Context, _ application.Application, backupID string) error {
	r.restores <- backupID
	return nil
}

type flakyAppStore struct {
	storage.ApplicationStore
	failures  int
	listCalls int
}

func (f *flakyAppStore) ListApplications(ctx context.Context, tenantID string) ([]application.Application, error) {
	f.listCalls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient store fault")
	}
	return f.ApplicationStore.ListApplications(ctx, tenantID)
}

type flakyBackupStore struct {
	storage.BackupStore
	failures int
	calls    int
}

func (f *flakyBackupStore) CreateBackup(ctx context.Context, b backup.Backup) (backup.Backup, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return backup.Backup{}, errors.New("transient store fault")
	}
	return f.BackupStore.CreateBackup(ctx, b)
}
