// Package storage defines the metadata store contracts. Implementations
// live in the memory and postgres subpackages; the store's uniqueness
// constraints are the final arbiter for domain collisions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/skydeck-host/skydeck/internal/app/domain/analytics"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/domain/upload"
)

// ErrNotFound is wrapped by all implementations when a record is missing.
var ErrNotFound = errors.New("not found")

// ErrDomainTaken is wrapped when an application insert or update violates
// domain uniqueness.
var ErrDomainTaken = errors.New("domain already taken")

// ApplicationStore persists application records.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	UpdateApplication(ctx context.Context, app application.Application) (application.Application, error)
	GetApplication(ctx context.Context, id string) (application.Application, error)
	GetApplicationByDomain(ctx context.Context, domain string) (application.Application, error)
	// ListApplications returns all applications, or one tenant's when
	// tenantID is non-empty, newest first.
	ListApplications(ctx context.Context, tenantID string) ([]application.Application, error)
	// DeleteApplication removes the application together with its backup
	// and event records.
	DeleteApplication(ctx context.Context, id string) error
	// DomainExists probes a candidate domain. It is an optimization; the
	// uniqueness constraint still decides races.
	DomainExists(ctx context.Context, domain string) (bool, error)
	// AddVisits applies a visit-counter delta and advances last_accessed.
	AddVisits(ctx context.Context, id string, delta int64, lastAccessed time.Time) error
	CountApplications(ctx context.Context) (int64, error)
}

// BackupStore persists backup descriptors. Backups are append-only.
type BackupStore interface {
	CreateBackup(ctx context.Context, b backup.Backup) (backup.Backup, error)
	GetBackup(ctx context.Context, id string) (backup.Backup, error)
	// ListBackups returns an application's backups, newest first.
	ListBackups(ctx context.Context, applicationID string) ([]backup.Backup, error)
	CountBackups(ctx context.Context) (int64, error)
}

// AnalyticsStore persists the append-only event log.
type AnalyticsStore interface {
	CreateEvent(ctx context.Context, ev analytics.Event) (analytics.Event, error)
	CountEventsByKind(ctx context.Context, applicationID string) (map[analytics.EventKind]int64, error)
	// ListRecentEvents returns an application's latest events, newest first.
	ListRecentEvents(ctx context.Context, applicationID string, limit int) ([]analytics.Event, error)
	// DailyVisitCounts returns per-day visit counts for the last `days`
	// days, oldest first. Days without visits are omitted.
	DailyVisitCounts(ctx context.Context, applicationID string, days int) ([]analytics.DailyVisits, error)
}

// TenantStore persists tenants.
type TenantStore interface {
	CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	GetTenantByUsername(ctx context.Context, username string) (tenant.Tenant, error)
}

// FileStore persists standalone uploaded file records.
type FileStore interface {
	CreateFile(ctx context.Context, f upload.File) (upload.File, error)
	GetFile(ctx context.Context, id string) (upload.File, error)
	ListFiles(ctx context.Context, tenantID string) ([]upload.File, error)
	DeleteFile(ctx context.Context, id string) error
}
