package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/skydeck-host/skydeck/internal/app"
	"github.com/skydeck-host/skydeck/internal/app/storage/postgres"
	"github.com/skydeck-host/skydeck/internal/config"
	"github.com/skydeck-host/skydeck/internal/platform/migrations"
)

// TestPostgresDeployFlow runs the deploy workflow against a real database.
// It is skipped unless DATABASE_URL points at a disposable instance.
func TestPostgresDeployFlow(t *testing.T) {
	_ = godotenv.Load("../../../.env")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := postgres.New(db)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Storage.Root = t.TempDir()
	cfg.Deploy.SkipInstall = true

	application, err := app.New(app.Options{
		Config: cfg,
		Stores: app.Stores{
			Applications: store,
			Backups:      store,
			Analytics:    store,
			Tenants:      store,
			Files:        store,
		},
		Logger: silentLogger("postgres-test"),
	})
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	router := newTestRouter(t, application)

	created := deployHTMLApp(t, router, "pg smoke", map[string]string{"index.html": "pg"})
	t.Cleanup(func() {
		_ = application.Deployments.Delete(context.Background(), created.ID)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apps/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get from database: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sites/"+created.ID, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pg" {
		t.Fatalf("serve from database-backed app: status %d body %q", rec.Code, rec.Body.String())
	}
}
