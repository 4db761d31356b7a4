// Package application defines the deployed-application model.
package application

import "time"

// Kind is the application content type.
type Kind string

const (
	KindHTML   Kind = "html"
	KindNodeJS Kind = "nodejs"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindHTML || k == KindNodeJS
}

// Status is the record-keeping run state. No processes are managed; the
// status gates serving and backup sweeps.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusRunning || s == StatusStopped
}

// Application is a deployed application. The domain is globally unique; the
// directory at Path exists on disk while the status is running.
type Application struct {
	ID           string
	TenantID     string
	Name         string
	Kind         Kind
	Domain       string
	Path         string
	URL          string
	Status       Status
	Port         int
	StartCommand string
	Description  string
	Public       bool
	Visits       int64
	LastAccessed time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
