package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skydeck-host/skydeck/internal/app/domain/analytics"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/storage"
)

func TestCreateApplicationAssignsIdentity(t *testing.T) {
	store := New()
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, application.Application{
		Name:   "blog",
		Kind:   application.KindHTML,
		Domain: "blog.skydeck.site",
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	if app.ID == "" {
		t.Fatal("expected generated ID")
	}
	if app.CreatedAt.IsZero() || app.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestCreateApplicationRejectsTakenDomain(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateApplication(ctx, application.Application{Name: "a", Domain: "site.skydeck.site"}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	_, err := store.CreateApplication(ctx, application.Application{Name: "b", Domain: "site.skydeck.site"})
	if !errors.Is(err, storage.ErrDomainTaken) {
		t.Fatalf("expected ErrDomainTaken, got %v", err)
	}
}

func TestUpdateApplicationRekeysDomain(t *testing.T) {
	store := New()
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, application.Application{Name: "a", Domain: "old.skydeck.site"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created := app.CreatedAt

	app.Domain = "new.skydeck.site"
	updated, err := store.UpdateApplication(ctx, app)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatal("update must preserve CreatedAt")
	}

	if _, err := store.GetApplicationByDomain(ctx, "old.skydeck.site"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("old domain should be released, got %v", err)
	}
	got, err := store.GetApplicationByDomain(ctx, "new.skydeck.site")
	if err != nil {
		t.Fatalf("lookup new domain: %v", err)
	}
	if got.ID != app.ID {
		t.Fatalf("new domain resolves to %s, want %s", got.ID, app.ID)
	}

	// The released domain is immediately reusable.
	if _, err := store.CreateApplication(ctx, application.Application{Name: "b", Domain: "old.skydeck.site"}); err != nil {
		t.Fatalf("reuse released domain: %v", err)
	}
}

func TestDeleteApplicationKeepsBackupsAndEvents(t *testing.T) {
	store := New()
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, application.Application{Name: "a", Domain: "a.skydeck.site"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := store.CreateBackup(ctx, backup.Backup{ApplicationID: app.ID, Path: "/tmp/b.zip"})
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if _, err := store.CreateEvent(ctx, analytics.Event{ApplicationID: app.ID, Kind: analytics.EventVisit}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	if err := store.DeleteApplication(ctx, app.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Backup and event rows reference the application softly and outlive it.
	if _, err := store.GetBackup(ctx, b.ID); err != nil {
		t.Fatalf("backup should survive the delete: %v", err)
	}
	backups, err := store.ListBackups(ctx, app.ID)
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups = %d, want 1", len(backups))
	}
	counts, err := store.CountEventsByKind(ctx, app.ID)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if counts[analytics.EventVisit] != 1 {
		t.Fatalf("visit events = %d, want 1", counts[analytics.EventVisit])
	}
	if exists, _ := store.DomainExists(ctx, "a.skydeck.site"); exists {
		t.Fatal("domain should be released after delete")
	}
}

func TestAddVisits(t *testing.T) {
	store := New()
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, application.Application{Name: "a", Domain: "a.skydeck.site"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := time.Now().UTC()
	if err := store.AddVisits(ctx, app.ID, 3, first); err != nil {
		t.Fatalf("add visits: %v", err)
	}
	// A stale flush must not move last_accessed backwards.
	if err := store.AddVisits(ctx, app.ID, 2, first.Add(-time.Hour)); err != nil {
		t.Fatalf("add visits: %v", err)
	}

	got, err := store.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Visits != 5 {
		t.Fatalf("visits = %d, want 5", got.Visits)
	}
	if !got.LastAccessed.Equal(first) {
		t.Fatalf("last accessed = %v, want %v", got.LastAccessed, first)
	}

	if err := store.AddVisits(ctx, "missing", 1, time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListApplicationsFiltersAndSorts(t *testing.T) {
	store := New()
	ctx := context.Background()

	older, _ := store.CreateApplication(ctx, application.Application{
		TenantID:  "t1",
		Name:      "older",
		Domain:    "older.skydeck.site",
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	newer, _ := store.CreateApplication(ctx, application.Application{
		TenantID: "t1",
		Name:     "newer",
		Domain:   "newer.skydeck.site",
	})
	if _, err := store.CreateApplication(ctx, application.Application{
		TenantID: "t2",
		Name:     "other",
		Domain:   "other.skydeck.site",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	apps, err := store.ListApplications(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("tenant filter returned %d apps, want 2", len(apps))
	}
	if apps[0].ID != newer.ID || apps[1].ID != older.ID {
		t.Fatalf("expected newest first, got %s then %s", apps[0].Name, apps[1].Name)
	}

	all, err := store.ListApplications(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("unfiltered list returned %d apps, want 3", len(all))
	}
}

func TestDailyVisitCountsWindow(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	seed := func(at time.Time, kind analytics.EventKind) {
		t.Helper()
		if _, err := store.CreateEvent(ctx, analytics.Event{
			ApplicationID: "app-1",
			Kind:          kind,
			CreatedAt:     at,
		}); err != nil {
			t.Fatalf("create event: %v", err)
		}
	}

	seed(now, analytics.EventVisit)
	seed(now, analytics.EventVisit)
	seed(now.AddDate(0, 0, -1), analytics.EventVisit)
	seed(now.AddDate(0, 0, -10), analytics.EventVisit) // outside the window
	seed(now, analytics.EventDeploy)                   // not a visit

	daily, err := store.DailyVisitCounts(ctx, "app-1", 7)
	if err != nil {
		t.Fatalf("daily visit counts: %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("daily buckets = %d, want 2: %+v", len(daily), daily)
	}
	if daily[0].Day >= daily[1].Day {
		t.Fatalf("buckets must be oldest first: %+v", daily)
	}
	if daily[1].Visits != 2 {
		t.Fatalf("today's visits = %d, want 2", daily[1].Visits)
	}
}

func TestListRecentEventsIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.CreateEvent(ctx, analytics.Event{
		ApplicationID: "app-1",
		Kind:          analytics.EventVisit,
		Metadata:      map[string]string{"path": "/"},
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	events, err := store.ListRecentEvents(ctx, "app-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	// Mutating a returned event must not leak into the store.
	events[0].Metadata["path"] = "/hacked"
	again, err := store.ListRecentEvents(ctx, "app-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if again[0].Metadata["path"] != "/" {
		t.Fatalf("stored metadata mutated: %v", again[0].Metadata)
	}
}

func TestGetTenantByUsernameIsCaseInsensitive(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateTenant(ctx, tenant.Tenant{Username: "Admin"})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	got, err := store.GetTenantByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("lookup returned %s, want %s", got.ID, created.ID)
	}

	if _, err := store.CreateTenant(ctx, tenant.Tenant{Username: "ADMIN"}); err == nil {
		t.Fatal("expected duplicate username to be rejected")
	}
}
