// Package analytics records deployment, visit and restore events and rolls
// them up into per-application summaries. Visits are counted through a
// batching counter and flushed to the metadata store periodically, so the
// serving path never writes to the store synchronously.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/skydeck-host/skydeck/internal/app/domain/analytics"
	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/metrics"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// summaryDays is the length of the visit histogram.
const summaryDays = 7

// recentEventLimit caps the recent-event list in a summary.
const recentEventLimit = 10

// Service records analytics events and serves summaries.
type Service struct {
	apps    storage.ApplicationStore
	store   storage.AnalyticsStore
	counter VisitCounter
	log     *logger.Logger
}

// New constructs an analytics service. A nil counter falls back to the
// in-process one.
func New(apps storage.ApplicationStore, store storage.AnalyticsStore, counter VisitCounter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	if counter == nil {
		counter = NewMemoryCounter()
	}
	return &Service{apps: apps, store: store, counter: counter, log: log}
}

// RecordDeploy persists a deploy event.
func (s *Service) RecordDeploy(ctx context.Context, app application.Application, ip, userAgent string) error {
	_, err := s.store.CreateEvent(ctx, analytics.Event{
		ApplicationID: app.ID,
		Kind:          analytics.EventDeploy,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Metadata: map[string]string{
			"domain": app.Domain,
			"kind":   string(app.Kind),
		},
	})
	if err != nil {
		return err
	}
	metrics.RecordAnalyticsEvent(string(analytics.EventDeploy))
	return nil
}

// RecordRestore persists a restore event.
func (s *Service) RecordRestore(ctx context.Context, app application.Application, backupID string) error {
	_, err := s.store.CreateEvent(ctx, analytics.Event{
		ApplicationID: app.ID,
		Kind:          analytics.EventRestore,
		Metadata: map[string]string{
			"backup_id": backupID,
		},
	})
	if err != nil {
		return err
	}
	metrics.RecordAnalyticsEvent(string(analytics.EventRestore))
	return nil
}

// RecordVisit counts a served entry page: the batching counter takes the
// increment and an event row feeds the daily histogram. A counter fault is
// logged but does not block the event.
func (s *Service) RecordVisit(ctx context.Context, applicationID, ip, userAgent, path string) error {
	if err := s.counter.Add(ctx, applicationID, 1); err != nil {
		s.log.WithError(err).Warnf("visit counter increment for %s", applicationID)
	}

	_, err := s.store.CreateEvent(ctx, analytics.Event{
		ApplicationID: applicationID,
		Kind:          analytics.EventVisit,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Metadata: map[string]string{
			"path": path,
		},
	})
	if err != nil {
		return err
	}
	metrics.RecordVisit()
	metrics.RecordAnalyticsEvent(string(analytics.EventVisit))
	return nil
}

// Summary aggregates an application's analytics: lifetime totals, a
// zero-filled seven-day visit histogram and the most recent events.
func (s *Service) Summary(ctx context.Context, applicationID string) (analytics.Summary, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return analytics.Summary{}, apperrors.NotFound("application", applicationID)
		}
		return analytics.Summary{}, apperrors.Storage("load application", err)
	}

	counts, err := s.store.CountEventsByKind(ctx, applicationID)
	if err != nil {
		return analytics.Summary{}, apperrors.Storage("count events", err)
	}
	daily, err := s.store.DailyVisitCounts(ctx, applicationID, summaryDays)
	if err != nil {
		return analytics.Summary{}, apperrors.Storage("load visit histogram", err)
	}
	recent, err := s.store.ListRecentEvents(ctx, applicationID, recentEventLimit)
	if err != nil {
		return analytics.Summary{}, apperrors.Storage("load recent events", err)
	}

	return analytics.Summary{
		ApplicationID: applicationID,
		Deploys:       counts[analytics.EventDeploy],
		Visits:        app.Visits,
		Restores:      counts[analytics.EventRestore],
		Daily:         zeroFill(daily, summaryDays, time.Now().UTC()),
		Recent:        recent,
	}, nil
}

// zeroFill expands a sparse histogram into one bucket per day, oldest
// first.
func zeroFill(daily []analytics.DailyVisits, days int, now time.Time) []analytics.DailyVisits {
	byDay := make(map[string]int64, len(daily))
	for _, d := range daily {
		byDay[d.Day] = d.Visits
	}

	filled := make([]analytics.DailyVisits, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		filled = append(filled, analytics.DailyVisits{Day: day, Visits: byDay[day]})
	}
	return filled
}

// FlushVisits drains the counter and applies the deltas to the metadata
// store. Deltas for deleted applications are dropped; deltas that fail to
// apply are put back for the next flush.
func (s *Service) FlushVisits(ctx context.Context) (int, error) {
	counts, err := s.counter.Drain(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	now := time.Now().UTC()
	for id, delta := range counts {
		if delta == 0 {
			continue
		}
		err := s.apps.AddVisits(ctx, id, delta, now)
		if err == nil {
			applied++
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		s.log.WithError(err).Warnf("apply %d visits to %s, requeueing", delta, id)
		if requeueErr := s.counter.Add(ctx, id, delta); requeueErr != nil {
			s.log.WithError(requeueErr).Errorf("requeue %d visits for %s", delta, id)
		}
	}
	return applied, nil
}
