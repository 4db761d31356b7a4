package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skydeck-host/skydeck/internal/app/domain/analytics"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/domain/upload"
	"github.com/skydeck-host/skydeck/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu           sync.RWMutex
	applications map[string]application.Application
	domains      map[string]string // domain -> application ID
	backups      map[string]backup.Backup
	events       []analytics.Event
	tenants      map[string]tenant.Tenant
	files        map[string]upload.File
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.BackupStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)
var _ storage.TenantStore = (*Store)(nil)
var _ storage.FileStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		applications: make(map[string]application.Application),
		domains:      make(map[string]string),
		backups:      make(map[string]backup.Backup),
		tenants:      make(map[string]tenant.Tenant),
		files:        make(map[string]upload.File),
	}
}

// ApplicationStore implementation ----------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.ID == "" {
		app.ID = uuid.NewString()
	} else if _, exists := s.applications[app.ID]; exists {
		return application.Application{}, fmt.Errorf("application %s already exists", app.ID)
	}
	if other, taken := s.domains[app.Domain]; taken && other != app.ID {
		return application.Application{}, fmt.Errorf("application domain %q: %w", app.Domain, storage.ErrDomainTaken)
	}

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}

	s.applications[app.ID] = app
	s.domains[app.Domain] = app.ID
	return app, nil
}

func (s *Store) UpdateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.applications[app.ID]
	if !exists {
		return application.Application{}, fmt.Errorf("application %s: %w", app.ID, storage.ErrNotFound)
	}
	if other, taken := s.domains[app.Domain]; taken && other != app.ID {
		return application.Application{}, fmt.Errorf("application domain %q: %w", app.Domain, storage.ErrDomainTaken)
	}

	app.CreatedAt = current.CreatedAt
	app.UpdatedAt = time.Now().UTC()

	if current.Domain != app.Domain {
		delete(s.domains, current.Domain)
	}
	s.applications[app.ID] = app
	s.domains[app.Domain] = app.ID
	return app, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, exists := s.applications[id]
	if !exists {
		return application.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return app, nil
}

func (s *Store) GetApplicationByDomain(_ context.Context, domain string) (application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.domains[domain]
	if !exists {
		return application.Application{}, fmt.Errorf("application domain %q: %w", domain, storage.ErrNotFound)
	}
	return s.applications[id], nil
}

func (s *Store) ListApplications(_ context.Context, tenantID string) ([]application.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]application.Application, 0, len(s.applications))
	for _, app := range s.applications {
		if tenantID != "" && app.TenantID != tenantID {
			continue
		}
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID < apps[j].ID
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	return apps, nil
}

func (s *Store) DeleteApplication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, exists := s.applications[id]
	if !exists {
		return fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	delete(s.applications, id)
	delete(s.domains, app.Domain)

	// Backup and event records reference the application softly and stay.
	return nil
}

func (s *Store) DomainExists(_ context.Context, domain string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.domains[domain]
	return exists, nil
}

func (s *Store) AddVisits(_ context.Context, id string, delta int64, lastAccessed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, exists := s.applications[id]
	if !exists {
		return fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	app.Visits += delta
	if lastAccessed.After(app.LastAccessed) {
		app.LastAccessed = lastAccessed
	}
	app.UpdatedAt = time.Now().UTC()
	s.applications[id] = app
	return nil
}

func (s *Store) CountApplications(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.applications)), nil
}

// BackupStore implementation ---------------------------------------------------

func (s *Store) CreateBackup(_ context.Context, b backup.Backup) (backup.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	} else if _, exists := s.backups[b.ID]; exists {
		return backup.Backup{}, fmt.Errorf("backup %s already exists", b.ID)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.backups[b.ID] = b
	return b, nil
}

func (s *Store) GetBackup(_ context.Context, id string) (backup.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.backups[id]
	if !exists {
		return backup.Backup{}, fmt.Errorf("backup %s: %w", id, storage.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBackups(_ context.Context, applicationID string) ([]backup.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]backup.Backup, 0)
	for _, b := range s.backups {
		if b.ApplicationID == applicationID {
			items = append(items, b)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) CountBackups(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.backups)), nil
}

// AnalyticsStore implementation ------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, ev analytics.Event) (analytics.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, cloneEvent(ev))
	return ev, nil
}

func (s *Store) CountEventsByKind(_ context.Context, applicationID string) (map[analytics.EventKind]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[analytics.EventKind]int64)
	for _, ev := range s.events {
		if ev.ApplicationID == applicationID {
			counts[ev.Kind]++
		}
	}
	return counts, nil
}

func (s *Store) ListRecentEvents(_ context.Context, applicationID string, limit int) ([]analytics.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	items := make([]analytics.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(items) < limit; i-- {
		if s.events[i].ApplicationID == applicationID {
			items = append(items, cloneEvent(s.events[i]))
		}
	}
	return items, nil
}

func (s *Store) DailyVisitCounts(_ context.Context, applicationID string, days int) ([]analytics.DailyVisits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	perDay := make(map[string]int64)
	for _, ev := range s.events {
		if ev.ApplicationID != applicationID || ev.Kind != analytics.EventVisit {
			continue
		}
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		perDay[ev.CreatedAt.UTC().Format("2006-01-02")]++
	}

	result := make([]analytics.DailyVisits, 0, len(perDay))
	for day, visits := range perDay {
		result = append(result, analytics.DailyVisits{Day: day, Visits: visits})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

// TenantStore implementation ---------------------------------------------------

func (s *Store) CreateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	} else if _, exists := s.tenants[t.ID]; exists {
		return tenant.Tenant{}, fmt.Errorf("tenant %s already exists", t.ID)
	}
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Username, t.Username) {
			return tenant.Tenant{}, fmt.Errorf("tenant username %q already exists", t.Username)
		}
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	s.tenants[t.ID] = t
	return t, nil
}

func (s *Store) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tenants[id]
	if !exists {
		return tenant.Tenant{}, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	return t, nil
}

func (s *Store) GetTenantByUsername(_ context.Context, username string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if strings.EqualFold(t.Username, username) {
			return t, nil
		}
	}
	return tenant.Tenant{}, fmt.Errorf("tenant %q: %w", username, storage.ErrNotFound)
}

// FileStore implementation -----------------------------------------------------

func (s *Store) CreateFile(_ context.Context, f upload.File) (upload.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	} else if _, exists := s.files[f.ID]; exists {
		return upload.File{}, fmt.Errorf("file %s already exists", f.ID)
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	s.files[f.ID] = f
	return f, nil
}

func (s *Store) GetFile(_ context.Context, id string) (upload.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.files[id]
	if !exists {
		return upload.File{}, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return f, nil
}

func (s *Store) ListFiles(_ context.Context, tenantID string) ([]upload.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]upload.File, 0)
	for _, f := range s.files {
		if tenantID != "" && f.TenantID != tenantID {
			continue
		}
		items = append(items, f)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) DeleteFile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[id]; !exists {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	delete(s.files, id)
	return nil
}

func cloneEvent(ev analytics.Event) analytics.Event {
	if ev.Metadata != nil {
		md := make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			md[k] = v
		}
		ev.Metadata = md
	}
	return ev
}
