// Package upload defines standalone uploaded files, the dashboard's small
// file-manager feature next to full application deployments.
package upload

import "time"

// File is a standalone uploaded file stored in the blob store's files area.
type File struct {
	ID          string
	TenantID    string
	Name        string
	Path        string
	SizeBytes   int64
	ContentType string
	CreatedAt   time.Time
}
