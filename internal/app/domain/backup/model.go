// Package backup defines the application snapshot model.
package backup

import "time"

// Trigger records what initiated a backup.
type Trigger string

const (
	TriggerDeploy Trigger = "deploy"
	TriggerSweep  Trigger = "sweep"
	TriggerManual Trigger = "manual"
)

// Backup is a compressed point-in-time snapshot of an application directory.
// Records are never mutated and are removed with their application.
type Backup struct {
	ID            string
	ApplicationID string
	Path          string
	SizeBytes     int64
	Trigger       Trigger
	CreatedAt     time.Time
}
