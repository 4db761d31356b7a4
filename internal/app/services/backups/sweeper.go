package backups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	"github.com/skydeck-host/skydeck/internal/app/system"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// SweepReport summarizes one sweep over the running applications.
type SweepReport struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// Sweeper periodically backs up every running application. Each application
// is handled in isolation: a missing directory is a logged skip, a failing
// one is retried with backoff inside the run, and neither stops the sweep.
type Sweeper struct {
	service  *Service
	apps     storage.ApplicationStore
	schedule string
	attempts int
	delay    time.Duration
	cron     *cron.Cron
	cancel   context.CancelFunc
	log      *logger.Logger
}

// NewSweeper creates a sweeper on a cron schedule such as "@hourly".
func NewSweeper(service *Service, apps storage.ApplicationStore, schedule string, attempts int, delay time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("backup-sweeper")
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Sweeper{
		service:  service,
		apps:     apps,
		schedule: schedule,
		attempts: attempts,
		delay:    delay,
		log:      log,
	}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "backup-sweeper" }

// Start schedules the sweep. Runs are bound to a context cancelled by Stop;
// cancellation is honored between applications, so the backup in flight at
// shutdown is allowed to finish.
func (s *Sweeper) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		report := s.RunSweep(runCtx)
		s.log.Infof("sweep finished: %d apps, %d backed up, %d skipped, %d failed",
			report.Total, report.Succeeded, report.Skipped, report.Failed)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.log.Infof("backup sweeper scheduled (%s)", s.schedule)
	return nil
}

// Stop cancels the sweep at the next application boundary and waits for the
// scheduler to drain.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		drained := s.cron.Stop()
		select {
		case <-drained.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RunSweep backs up every running application once. It is exported so a
// sweep can also be driven manually or from tests.
func (s *Sweeper) RunSweep(ctx context.Context) SweepReport {
	var report SweepReport

	apps, err := s.listWithRetry(ctx)
	if err != nil {
		s.log.WithError(err).Error("sweep aborted: list applications")
		return report
	}

	for _, app := range apps {
		if ctx.Err() != nil {
			s.log.Warn("sweep interrupted")
			return report
		}
		if app.Status != application.StatusRunning {
			continue
		}
		report.Total++

		err := s.backupWithRetry(ctx, app.ID)
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, ErrMissingDirectory):
			report.Skipped++
			s.log.WithField("application_id", app.ID).
				Warnf("skipping %q: directory missing", app.Name)
		case apperrors.IsNotFound(err):
			// Deleted between listing and backup.
			report.Skipped++
		default:
			report.Failed++
			s.log.WithError(err).WithField("application_id", app.ID).
				Errorf("backup failed for %q", app.Name)
		}
	}
	return report
}

// listWithRetry loads the application listing with the same bounded backoff
// the per-application backups get, so one transient store fault does not
// cost a whole sweep interval.
func (s *Sweeper) listWithRetry(ctx context.Context) ([]application.Application, error) {
	delay := s.delay
	var apps []application.Application
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		apps, err = s.apps.ListApplications(ctx, "")
		if err == nil {
			return apps, nil
		}
		if attempt == s.attempts {
			break
		}
		s.log.WithError(err).
			Warnf("list attempt %d/%d failed, retrying in %s", attempt, s.attempts, delay)
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func (s *Sweeper) backupWithRetry(ctx context.Context, applicationID string) error {
	delay := s.delay
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		// The backup itself runs to completion even when the run is
		// cancelled mid-flight; only waits between attempts abort early.
		_, err = s.service.Create(context.WithoutCancel(ctx), applicationID, backup.TriggerSweep)
		if err == nil || errors.Is(err, ErrMissingDirectory) || apperrors.IsNotFound(err) {
			return err
		}
		if attempt == s.attempts {
			break
		}
		s.log.WithError(err).WithField("application_id", applicationID).
			Warnf("backup attempt %d/%d failed, retrying in %s", attempt, s.attempts, delay)
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
