// Package sysinfo backs the dashboard's system panel: a host and process
// snapshot from gopsutil plus record counts from the metadata store, and a
// read-only export of everything the store knows.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/storage"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// HostInfo describes the machine the dashboard runs on.
type HostInfo struct {
	Hostname      string `json:"hostname"`
	Platform      string `json:"platform"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
}

// MemoryInfo is the virtual memory snapshot.
type MemoryInfo struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskInfo is the usage of the filesystem holding the storage root.
type DiskInfo struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Info is the system panel snapshot.
type Info struct {
	Host         HostInfo   `json:"host"`
	CPUPercent   float64    `json:"cpu_percent"`
	Memory       MemoryInfo `json:"memory"`
	Disk         DiskInfo   `json:"disk"`
	Applications int64      `json:"applications"`
	Backups      int64      `json:"backups"`
	CollectedAt  time.Time  `json:"collected_at"`
}

// Process is one row of the process listing.
type Process struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"mem_percent"`
	Status     string  `json:"status"`
}

// Export is the read-only snapshot of everything the metadata store holds.
// It replaces the original dashboard's writable config-file mirror.
type Export struct {
	Tenant       tenant.Tenant             `json:"tenant"`
	Applications []application.Application `json:"applications"`
	Backups      []backup.Backup           `json:"backups"`
	ExportedAt   time.Time                 `json:"exported_at"`
}

// Service collects system information.
type Service struct {
	apps        storage.ApplicationStore
	backups     storage.BackupStore
	tenants     storage.TenantStore
	storageRoot string
	log         *logger.Logger
}

// New constructs a sysinfo service. storageRoot locates the filesystem whose
// usage is reported.
func New(apps storage.ApplicationStore, backups storage.BackupStore, tenants storage.TenantStore, storageRoot string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sysinfo")
	}
	return &Service{
		apps:        apps,
		backups:     backups,
		tenants:     tenants,
		storageRoot: storageRoot,
		log:         log,
	}
}

// Info collects a full panel snapshot. Individual probe failures degrade to
// zero values rather than failing the snapshot; store failures do not.
func (s *Service) Info(ctx context.Context) (Info, error) {
	info := Info{CollectedAt: time.Now().UTC()}

	if h, err := host.InfoWithContext(ctx); err != nil {
		s.log.WithError(err).Warn("host probe failed")
	} else {
		info.Host = HostInfo{
			Hostname:      h.Hostname,
			Platform:      fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion),
			UptimeSeconds: h.Uptime,
		}
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.log.WithError(err).Warn("cpu probe failed")
	} else if len(percents) > 0 {
		info.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.log.WithError(err).Warn("memory probe failed")
	} else {
		info.Memory = MemoryInfo{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	}

	if du, err := disk.UsageWithContext(ctx, s.storageRoot); err != nil {
		s.log.WithError(err).Warnf("disk probe failed for %s", s.storageRoot)
	} else {
		info.Disk = DiskInfo{
			Path:        s.storageRoot,
			TotalBytes:  du.Total,
			UsedBytes:   du.Used,
			UsedPercent: du.UsedPercent,
		}
	}

	appCount, err := s.apps.CountApplications(ctx)
	if err != nil {
		return Info{}, apperrors.Storage("count applications", err)
	}
	backupCount, err := s.backups.CountBackups(ctx)
	if err != nil {
		return Info{}, apperrors.Storage("count backups", err)
	}
	info.Applications = appCount
	info.Backups = backupCount
	return info, nil
}

// Processes returns the top processes by CPU usage, at most limit entries.
func (s *Service) Processes(ctx context.Context, limit int) ([]Process, error) {
	if limit <= 0 {
		limit = 20
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, apperrors.Internal("list processes", err)
	}

	listing := make([]Process, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes vanish between listing and inspection.
			continue
		}
		cpuPct, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)
		status := ""
		if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
			status = st[0]
		}
		listing = append(listing, Process{
			PID:        p.Pid,
			Name:       name,
			CPUPercent: cpuPct,
			MemPercent: memPct,
			Status:     status,
		})
	}

	sort.Slice(listing, func(i, j int) bool {
		return listing[i].CPUPercent > listing[j].CPUPercent
	})
	if len(listing) > limit {
		listing = listing[:limit]
	}
	return listing, nil
}

// Export assembles the read-only state snapshot.
func (s *Service) Export(ctx context.Context) (Export, error) {
	t, err := s.tenants.GetTenantByUsername(ctx, tenant.DefaultUsername)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Export{}, apperrors.Storage("load tenant", err)
	}

	apps, err := s.apps.ListApplications(ctx, "")
	if err != nil {
		return Export{}, apperrors.Storage("list applications", err)
	}

	var allBackups []backup.Backup
	for _, app := range apps {
		items, err := s.backups.ListBackups(ctx, app.ID)
		if err != nil {
			return Export{}, apperrors.Storage("list backups", err)
		}
		allBackups = append(allBackups, items...)
	}

	return Export{
		Tenant:       t,
		Applications: apps,
		Backups:      allBackups,
		ExportedAt:   time.Now().UTC(),
	}, nil
}
