// Package analytics defines the append-only event log model.
package analytics

import "time"

// EventKind classifies an analytics event.
type EventKind string

const (
	EventDeploy  EventKind = "deploy"
	EventVisit   EventKind = "visit"
	EventRestore EventKind = "restore"
)

// Event is one recorded occurrence. Events are append-only and are removed
// with their application.
type Event struct {
	ID            string
	ApplicationID string
	Kind          EventKind
	IPAddress     string
	UserAgent     string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// DailyVisits is one day of the visit histogram. Day is formatted
// YYYY-MM-DD in UTC.
type DailyVisits struct {
	Day    string
	Visits int64
}

// Summary aggregates an application's analytics.
type Summary struct {
	ApplicationID string
	Deploys       int64
	Visits        int64
	Restores      int64
	Daily         []DailyVisits
	Recent        []Event
}
