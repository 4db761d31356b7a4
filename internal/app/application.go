// Package app composes the stores, blob store and services into a running
// application and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/skydeck-host/skydeck/internal/app/blobstore"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/domains"
	"github.com/skydeck-host/skydeck/internal/app/keylock"
	analyticssvc "github.com/skydeck-host/skydeck/internal/app/services/analytics"
	backupssvc "github.com/skydeck-host/skydeck/internal/app/services/backups"
	"github.com/skydeck-host/skydeck/internal/app/services/deployments"
	"github.com/skydeck-host/skydeck/internal/app/services/sysinfo"
	"github.com/skydeck-host/skydeck/internal/app/services/templates"
	"github.com/skydeck-host/skydeck/internal/app/services/uploads"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	"github.com/skydeck-host/skydeck/internal/app/storage/memory"
	"github.com/skydeck-host/skydeck/internal/app/system"
	"github.com/skydeck-host/skydeck/internal/config"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// Stores bundles the metadata store interfaces. Any nil field falls back to
// a shared in-memory store, which keeps tests and local runs database-free.
type Stores struct {
	Applications storage.ApplicationStore
	Backups      storage.BackupStore
	Analytics    storage.AnalyticsStore
	Tenants      storage.TenantStore
	Files        storage.FileStore
}

func (s Stores) withFallback() Stores {
	var mem *memory.Store
	fallback := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Applications == nil {
		s.Applications = fallback()
	}
	if s.Backups == nil {
		s.Backups = fallback()
	}
	if s.Analytics == nil {
		s.Analytics = fallback()
	}
	if s.Tenants == nil {
		s.Tenants = fallback()
	}
	if s.Files == nil {
		s.Files = fallback()
	}
	return s
}

// Options configures New. Config is required; Blobs defaults to a blob store
// rooted at the configured storage root; Redis is optional and upgrades the
// visit counter.
type Options struct {
	Config *config.Config
	Stores Stores
	Blobs  *blobstore.Store
	Redis  *redis.Client
	Logger *logger.Logger
}

// Application is the composed dashboard backend.
type Application struct {
	Config      *config.Config
	Stores      Stores
	Blobs       *blobstore.Store
	Domains     *domains.Allocator
	Deployments *deployments.Service
	Backups     *backupssvc.Service
	Analytics   *analyticssvc.Service
	SysInfo     *sysinfo.Service
	Templates   *templates.Catalog
	Uploads     *uploads.Service

	// Tenant is the always-present single tenant, ensured by Start.
	Tenant tenant.Tenant

	manager *system.Manager
	log     *logger.Logger
}

// New wires the application together. Nothing is started yet; Start brings
// up the background services and ensures the default tenant.
func New(opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("skydeck")
	}

	stores := opts.Stores.withFallback()

	blobs := opts.Blobs
	if blobs == nil {
		var err error
		blobs, err = blobstore.New(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
	}

	locks := keylock.New()
	alloc := domains.NewAllocator(stores.Applications, cfg.Domains.Base)

	var counter analyticssvc.VisitCounter
	if opts.Redis != nil {
		counter = analyticssvc.NewRedisCounter(opts.Redis)
	}
	analyticsService := analyticssvc.New(stores.Applications, stores.Analytics, counter, log.WithField("service", "analytics"))

	backupService := backupssvc.New(stores.Applications, stores.Backups, blobs, locks, log.WithField("service", "backups"))
	backupService.AttachAnalytics(analyticsService)

	deployService := deployments.New(stores.Applications, blobs, alloc, locks, cfg.Domains.URLScheme, log.WithField("service", "deployments"))
	deployService.AttachBackups(backupService)
	deployService.AttachAnalytics(analyticsService)
	if cfg.Deploy.SkipInstall {
		deployService.AttachInstaller(deployments.NoopInstaller{})
	} else {
		deployService.AttachInstaller(deployments.NewNpmInstaller(cfg.Deploy.InstallTimeout, log.WithField("service", "npm")))
	}

	sysinfoService := sysinfo.New(stores.Applications, stores.Backups, stores.Tenants, blobs.Root(), log.WithField("service", "sysinfo"))

	catalog, err := templates.NewCatalog(cfg.Templates.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load template catalog: %w", err)
	}

	uploadService := uploads.New(stores.Files, blobs, log.WithField("service", "uploads"))

	manager := system.NewManager(log.WithField("service", "system"))
	sweeper := backupssvc.NewSweeper(backupService, stores.Applications,
		cfg.Backups.Schedule, cfg.Backups.RetryAttempts, cfg.Backups.RetryDelay,
		log.WithField("service", "backup-sweeper"))
	flusher := analyticssvc.NewFlusher(analyticsService, cfg.Analytics.FlushInterval,
		log.WithField("service", "visit-flusher"))
	for _, svc := range []system.Service{
		system.NoopService{ServiceName: "deployments"},
		system.NoopService{ServiceName: "serving"},
		sweeper,
		flusher,
	} {
		if err := manager.Register(svc); err != nil {
			return nil, err
		}
	}

	return &Application{
		Config:      cfg,
		Stores:      stores,
		Blobs:       blobs,
		Domains:     alloc,
		Deployments: deployService,
		Backups:     backupService,
		Analytics:   analyticsService,
		SysInfo:     sysinfoService,
		Templates:   catalog,
		Uploads:     uploadService,
		manager:     manager,
		log:         log,
	}, nil
}

// Start ensures the default tenant exists and brings up the background
// services.
func (a *Application) Start(ctx context.Context) error {
	t, err := a.ensureDefaultTenant(ctx)
	if err != nil {
		return err
	}
	a.Tenant = t

	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	a.log.Infof("application started (tenant %s, services: %v)", t.Username, a.manager.Names())
	return nil
}

// Stop shuts the background services down gracefully.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// ensureDefaultTenant creates the single dashboard tenant on first boot and
// returns it on every later one.
func (a *Application) ensureDefaultTenant(ctx context.Context) (tenant.Tenant, error) {
	existing, err := a.Stores.Tenants.GetTenantByUsername(ctx, tenant.DefaultUsername)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return tenant.Tenant{}, fmt.Errorf("load default tenant: %w", err)
	}

	created, err := a.Stores.Tenants.CreateTenant(ctx, tenant.Tenant{
		Username: tenant.DefaultUsername,
		Email:    tenant.DefaultUsername + "@" + a.Config.Domains.Base,
	})
	if err != nil {
		return tenant.Tenant{}, fmt.Errorf("create default tenant: %w", err)
	}
	a.log.Infof("created default tenant %s", created.Username)
	return created, nil
}
