package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skydeck-host/skydeck/internal/app/domain/analytics"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/domain/upload"
	"github.com/skydeck-host/skydeck/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. The
// applications_domain_key unique constraint is the final arbiter for domain
// ownership; in-process existence probes are only an optimization.
type Store struct {
	db *sqlx.DB
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.BackupStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)
var _ storage.TenantStore = (*Store)(nil)
var _ storage.FileStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// --- ApplicationStore --------------------------------------------------------

type applicationRow struct {
	ID           string       `db:"id"`
	TenantID     string       `db:"tenant_id"`
	Name         string       `db:"name"`
	Kind         string       `db:"kind"`
	Domain       string       `db:"domain"`
	Path         string       `db:"path"`
	URL          string       `db:"url"`
	Status       string       `db:"status"`
	Port         int          `db:"port"`
	StartCommand string       `db:"start_command"`
	Description  string       `db:"description"`
	Public       bool         `db:"public"`
	Visits       int64        `db:"visits"`
	LastAccessed sql.NullTime `db:"last_accessed"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r applicationRow) toDomain() application.Application {
	return application.Application{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Name,
		Kind:         application.Kind(r.Kind),
		Domain:       r.Domain,
		Path:         r.Path,
		URL:          r.URL,
		Status:       application.Status(r.Status),
		Port:         r.Port,
		StartCommand: r.StartCommand,
		Description:  r.Description,
		Public:       r.Public,
		Visits:       r.Visits,
		LastAccessed: fromNullTime(r.LastAccessed),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const applicationColumns = `id, tenant_id, name, kind, domain, path, url, status, port,
	start_command, description, public, visits, last_accessed, created_at, updated_at`

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, app.ID, app.TenantID, app.Name, string(app.Kind), app.Domain, app.Path, app.URL,
		string(app.Status), app.Port, app.StartCommand, app.Description, app.Public,
		app.Visits, toNullTime(app.LastAccessed), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "applications_domain_key") {
			return application.Application{}, fmt.Errorf("application domain %q: %w", app.Domain, storage.ErrDomainTaken)
		}
		return application.Application{}, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

func (s *Store) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	app.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET
			name = $2, kind = $3, domain = $4, path = $5, url = $6, status = $7,
			port = $8, start_command = $9, description = $10, public = $11, updated_at = $12
		WHERE id = $1
	`, app.ID, app.Name, string(app.Kind), app.Domain, app.Path, app.URL,
		string(app.Status), app.Port, app.StartCommand, app.Description, app.Public,
		app.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "applications_domain_key") {
			return application.Application{}, fmt.Errorf("application domain %q: %w", app.Domain, storage.ErrDomainTaken)
		}
		return application.Application{}, fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return application.Application{}, fmt.Errorf("update application: %w", err)
	}
	if affected == 0 {
		return application.Application{}, fmt.Errorf("application %s: %w", app.ID, storage.ErrNotFound)
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+applicationColumns+` FROM applications WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return application.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
		}
		return application.Application{}, fmt.Errorf("select application: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetApplicationByDomain(ctx context.Context, domain string) (application.Application, error) {
	var row applicationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+applicationColumns+` FROM applications WHERE domain = $1
	`, domain)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return application.Application{}, fmt.Errorf("application domain %q: %w", domain, storage.ErrNotFound)
		}
		return application.Application{}, fmt.Errorf("select application by domain: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListApplications(ctx context.Context, tenantID string) ([]application.Application, error) {
	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+applicationColumns+` FROM applications
		WHERE $1 = '' OR tenant_id = $1
		ORDER BY created_at DESC, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toDomain())
	}
	return apps, nil
}

func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DomainExists(ctx context.Context, domain string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM applications WHERE domain = $1)
	`, domain)
	if err != nil {
		return false, fmt.Errorf("probe domain: %w", err)
	}
	return exists, nil
}

func (s *Store) AddVisits(ctx context.Context, id string, delta int64, lastAccessed time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET
			visits = visits + $2,
			last_accessed = GREATEST(COALESCE(last_accessed, 'epoch'::timestamptz), $3),
			updated_at = $4
		WHERE id = $1
	`, id, delta, lastAccessed.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add visits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add visits: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CountApplications(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM applications`); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return count, nil
}

// --- BackupStore -------------------------------------------------------------

type backupRow struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	Path          string    `db:"path"`
	SizeBytes     int64     `db:"size_bytes"`
	TriggeredBy   string    `db:"triggered_by"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r backupRow) toDomain() backup.Backup {
	return backup.Backup{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		Path:          r.Path,
		SizeBytes:     r.SizeBytes,
		Trigger:       backup.Trigger(r.TriggeredBy),
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Store) CreateBackup(ctx context.Context, b backup.Backup) (backup.Backup, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backups (id, application_id, path, size_bytes, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.ApplicationID, b.Path, b.SizeBytes, string(b.Trigger), b.CreatedAt)
	if err != nil {
		return backup.Backup{}, fmt.Errorf("insert backup: %w", err)
	}
	return b, nil
}

func (s *Store) GetBackup(ctx context.Context, id string) (backup.Backup, error) {
	var row backupRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, application_id, path, size_bytes, triggered_by, created_at
		FROM backups WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backup.Backup{}, fmt.Errorf("backup %s: %w", id, storage.ErrNotFound)
		}
		return backup.Backup{}, fmt.Errorf("select backup: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListBackups(ctx context.Context, applicationID string) ([]backup.Backup, error) {
	var rows []backupRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, application_id, path, size_bytes, triggered_by, created_at
		FROM backups WHERE application_id = $1
		ORDER BY created_at DESC, id
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	items := make([]backup.Backup, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (s *Store) CountBackups(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM backups`); err != nil {
		return 0, fmt.Errorf("count backups: %w", err)
	}
	return count, nil
}

// --- AnalyticsStore ----------------------------------------------------------

type eventRow struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	Kind          string    `db:"kind"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	Metadata      []byte    `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r eventRow) toDomain() (analytics.Event, error) {
	ev := analytics.Event{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		Kind:          analytics.EventKind(r.Kind),
		IPAddress:     r.IPAddress,
		UserAgent:     r.UserAgent,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &ev.Metadata); err != nil {
			return analytics.Event{}, fmt.Errorf("decode event metadata: %w", err)
		}
	}
	return ev, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev analytics.Event) (analytics.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	metadata := []byte("{}")
	if ev.Metadata != nil {
		encoded, err := json.Marshal(ev.Metadata)
		if err != nil {
			return analytics.Event{}, fmt.Errorf("encode event metadata: %w", err)
		}
		metadata = encoded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, application_id, kind, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.ApplicationID, string(ev.Kind), ev.IPAddress, ev.UserAgent, metadata, ev.CreatedAt)
	if err != nil {
		return analytics.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

func (s *Store) CountEventsByKind(ctx context.Context, applicationID string) (map[analytics.EventKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM analytics_events
		WHERE application_id = $1
		GROUP BY kind
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[analytics.EventKind]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[analytics.EventKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	return counts, nil
}

func (s *Store) ListRecentEvents(ctx context.Context, applicationID string, limit int) ([]analytics.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, application_id, kind, ip_address, user_agent, metadata, created_at
		FROM analytics_events WHERE application_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, applicationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]analytics.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Store) DailyVisitCounts(ctx context.Context, applicationID string, days int) ([]analytics.DailyVisits, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM analytics_events
		WHERE application_id = $1 AND kind = $2 AND created_at >= $3
		GROUP BY day
		ORDER BY day
	`, applicationID, string(analytics.EventVisit), since)
	if err != nil {
		return nil, fmt.Errorf("daily visit counts: %w", err)
	}
	defer rows.Close()

	var daily []analytics.DailyVisits
	for rows.Next() {
		var d analytics.DailyVisits
		if err := rows.Scan(&d.Day, &d.Visits); err != nil {
			return nil, fmt.Errorf("scan daily visits: %w", err)
		}
		daily = append(daily, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily visit counts: %w", err)
	}
	return daily, nil
}

// --- TenantStore -------------------------------------------------------------

type tenantRow struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r tenantRow) toDomain() tenant.Tenant {
	return tenant.Tenant{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, username, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Username, t.Email, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "tenants_username_key") {
			return tenant.Tenant{}, fmt.Errorf("tenant username %q already exists", t.Username)
		}
		return tenant.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, created_at, updated_at FROM tenants WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.Tenant{}, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
		}
		return tenant.Tenant{}, fmt.Errorf("select tenant: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetTenantByUsername(ctx context.Context, username string) (tenant.Tenant, error) {
	var row tenantRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, email, created_at, updated_at FROM tenants
		WHERE LOWER(username) = LOWER($1)
	`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.Tenant{}, fmt.Errorf("tenant %q: %w", username, storage.ErrNotFound)
		}
		return tenant.Tenant{}, fmt.Errorf("select tenant by username: %w", err)
	}
	return row.toDomain(), nil
}

// --- FileStore ---------------------------------------------------------------

type fileRow struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	Name        string    `db:"name"`
	Path        string    `db:"path"`
	SizeBytes   int64     `db:"size_bytes"`
	ContentType string    `db:"content_type"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r fileRow) toDomain() upload.File {
	return upload.File{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Name:        r.Name,
		Path:        r.Path,
		SizeBytes:   r.SizeBytes,
		ContentType: r.ContentType,
		CreatedAt:   r.CreatedAt,
	}
}

func (s *Store) CreateFile(ctx context.Context, f upload.File) (upload.File, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, tenant_id, name, path, size_bytes, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.TenantID, f.Name, f.Path, f.SizeBytes, f.ContentType, f.CreatedAt)
	if err != nil {
		return upload.File{}, fmt.Errorf("insert file: %w", err)
	}
	return f, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (upload.File, error) {
	var row fileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, tenant_id, name, path, size_bytes, content_type, created_at
		FROM files WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return upload.File{}, fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
		}
		return upload.File{}, fmt.Errorf("select file: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListFiles(ctx context.Context, tenantID string) ([]upload.File, error) {
	var rows []fileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, tenant_id, name, path, size_bytes, content_type, created_at
		FROM files WHERE $1 = '' OR tenant_id = $1
		ORDER BY created_at DESC, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	items := make([]upload.File, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("file %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
