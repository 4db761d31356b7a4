package sysinfo

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/domain/tenant"
	"github.com/skydeck-host/skydeck/internal/app/storage/memory"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := logger.NewDefault("sysinfo-test")
	log.SetOutput(io.Discard)
	return New(store, store, store, t.TempDir(), log), store
}

func TestInfoCountsRecords(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	app, err := store.CreateApplication(ctx, application.Application{
		Name:   "panel",
		Kind:   application.KindHTML,
		Domain: "panel.skydeck.site",
		Status: application.StatusRunning,
	})
	require.NoError(t, err)
	_, err = store.CreateBackup(ctx, backup.Backup{
		ApplicationID: app.ID,
		Path:          "/tmp/panel.zip",
		Trigger:       backup.TriggerManual,
	})
	require.NoError(t, err)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, info.Applications)
	require.EqualValues(t, 1, info.Backups)
	require.False(t, info.CollectedAt.IsZero())
}

func TestProcessesSortedAndLimited(t *testing.T) {
	svc, _ := newService(t)

	procs, err := svc.Processes(context.Background(), 5)
	require.NoError(t, err)
	require.LessOrEqual(t, len(procs), 5)
	for i := 1; i < len(procs); i++ {
		require.GreaterOrEqual(t, procs[i-1].CPUPercent, procs[i].CPUPercent,
			"process listing must be sorted by CPU descending")
	}
}

func TestExportSnapshot(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	owner, err := store.CreateTenant(ctx, tenant.Tenant{Username: tenant.DefaultUsername, Email: "admin@skydeck.site"})
	require.NoError(t, err)

	app, err := store.CreateApplication(ctx, application.Application{
		TenantID: owner.ID,
		Name:     "exported",
		Kind:     application.KindHTML,
		Domain:   "exported.skydeck.site",
		Status:   application.StatusRunning,
	})
	require.NoError(t, err)
	_, err = store.CreateBackup(ctx, backup.Backup{ApplicationID: app.ID, Path: "/tmp/e.zip", Trigger: backup.TriggerDeploy})
	require.NoError(t, err)

	export, err := svc.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, owner.ID, export.Tenant.ID)
	require.Len(t, export.Applications, 1)
	require.Len(t, export.Backups, 1)
	require.Equal(t, app.ID, export.Backups[0].ApplicationID)
}

func TestExportWithoutTenant(t *testing.T) {
	svc, _ := newService(t)

	export, err := svc.Export(context.Background())
	require.NoError(t, err)
	require.Empty(t, export.Tenant.ID)
	require.Empty(t, export.Applications)
}
