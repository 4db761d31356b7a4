package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/skydeck-host/skydeck/internal/app/system"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

var _ system.Service = (*Flusher)(nil)

// Flusher periodically applies pending visit counts to the metadata store.
// A final drain runs on Stop so counts are not lost across restarts when
// the in-process counter is used.
type Flusher struct {
	service  *Service
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewFlusher creates a lifecycle-managed visit flusher.
func NewFlusher(service *Service, interval time.Duration, log *logger.Logger) *Flusher {
	if log == nil {
		log = logger.NewDefault("visit-flusher")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Flusher{
		service:  service,
		log:      log,
		interval: interval,
	}
}

func (f *Flusher) Name() string { return "visit-flusher" }

func (f *Flusher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				f.tick(runCtx)
			}
		}
	}()

	f.log.Info("visit flusher started")
	return nil
}

func (f *Flusher) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	cancel := f.cancel
	f.running = false
	f.cancel = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Final drain so a clean shutdown does not drop pending counts.
	f.tick(ctx)

	f.log.Info("visit flusher stopped")
	return nil
}

func (f *Flusher) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	applied, err := f.service.FlushVisits(ctx)
	if err != nil {
		f.log.WithError(err).Warn("visit flush failed")
		return
	}
	if applied > 0 {
		f.log.Debugf("flushed visit counts for %d applications", applied)
	}
}
