package httpapi

import (
	"time"

	"github.com/skydeck-host/skydeck/internal/app/domain/analytics"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/upload"
)

// applicationResponse is the wire shape of an application record.
type applicationResponse struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	Domain       string     `json:"domain"`
	URL          string     `json:"url"`
	ServingPath  string     `json:"serving_path"`
	Status       string     `json:"status"`
	Port         int        `json:"port,omitempty"`
	StartCommand string     `json:"start_command,omitempty"`
	Description  string     `json:"description,omitempty"`
	Public       bool       `json:"public"`
	Visits       int64      `json:"visits"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toApplicationResponse(app application.Application) applicationResponse {
	resp := applicationResponse{
		ID:           app.ID,
		TenantID:     app.TenantID,
		Name:         app.Name,
		Kind:         string(app.Kind),
		Domain:       app.Domain,
		URL:          app.URL,
		ServingPath:  "/sites/" + app.ID,
		Status:       string(app.Status),
		Port:         app.Port,
		StartCommand: app.StartCommand,
		Description:  app.Description,
		Public:       app.Public,
		Visits:       app.Visits,
		CreatedAt:    app.CreatedAt,
		UpdatedAt:    app.UpdatedAt,
	}
	if !app.LastAccessed.IsZero() {
		accessed := app.LastAccessed
		resp.LastAccessed = &accessed
	}
	return resp
}

func toApplicationResponses(apps []application.Application) []applicationResponse {
	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toApplicationResponse(a))
	}
	return out
}

// backupResponse is the wire shape of a backup descriptor. The on-disk path
// stays internal.
type backupResponse struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	SizeBytes     int64     `json:"size_bytes"`
	Trigger       string    `json:"trigger"`
	CreatedAt     time.Time `json:"created_at"`
}

func toBackupResponse(b backup.Backup) backupResponse {
	return backupResponse{
		ID:            b.ID,
		ApplicationID: b.ApplicationID,
		SizeBytes:     b.SizeBytes,
		Trigger:       string(b.Trigger),
		CreatedAt:     b.CreatedAt,
	}
}

func toBackupResponses(items []backup.Backup) []backupResponse {
	out := make([]backupResponse, 0, len(items))
	for _, b := range items {
		out = append(out, toBackupResponse(b))
	}
	return out
}

// eventResponse is the wire shape of an analytics event.
type eventResponse struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// summaryResponse is the wire shape of an analytics summary.
type summaryResponse struct {
	ApplicationID string                  `json:"application_id"`
	Deploys       int64                   `json:"deploys"`
	Visits        int64                   `json:"visits"`
	Restores      int64                   `json:"restores"`
	Daily         []analytics.DailyVisits `json:"daily"`
	Recent        []eventResponse         `json:"recent"`
}

func toSummaryResponse(s analytics.Summary) summaryResponse {
	recent := make([]eventResponse, 0, len(s.Recent))
	for _, ev := range s.Recent {
		recent = append(recent, eventResponse{
			ID:        ev.ID,
			Kind:      string(ev.Kind),
			IPAddress: ev.IPAddress,
			UserAgent: ev.UserAgent,
			Metadata:  ev.Metadata,
			CreatedAt: ev.CreatedAt,
		})
	}
	return summaryResponse{
		ApplicationID: s.ApplicationID,
		Deploys:       s.Deploys,
		Visits:        s.Visits,
		Restores:      s.Restores,
		Daily:         s.Daily,
		Recent:        recent,
	}
}

// fileResponse is the wire shape of a standalone uploaded file.
type fileResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func toFileResponse(f upload.File) fileResponse {
	return fileResponse{
		ID:          f.ID,
		Name:        f.Name,
		SizeBytes:   f.SizeBytes,
		ContentType: f.ContentType,
		CreatedAt:   f.CreatedAt,
	}
}

func toFileResponses(files []upload.File) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	return out
}
