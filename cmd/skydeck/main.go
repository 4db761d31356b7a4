// Command skydeck runs the cloud computer dashboard backend: the REST API,
// the application serving layer and the background backup and analytics
// services.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/skydeck-host/skydeck/internal/app"
	"github.com/skydeck-host/skydeck/internal/app/httpapi"
	"github.com/skydeck-host/skydeck/internal/app/metrics"
	"github.com/skydeck-host/skydeck/internal/app/storage/postgres"
	"github.com/skydeck-host/skydeck/internal/config"
	"github.com/skydeck-host/skydeck/internal/middleware"
	"github.com/skydeck-host/skydeck/internal/platform/migrations"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional env file")
	auditFile := flag.String("audit-file", "", "append API audit entries to this file as JSON lines")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load env file %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}
	log = log.WithField("service", "skydeck")

	if err := run(cfg, log, *auditFile); err != nil {
		log.WithError(err).Fatal("skydeck exited")
	}
}

func run(cfg *config.Config, log *logger.Logger, auditFile string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeDB, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	redisClient, err := openRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	application, err := app.New(app.Options{
		Config: cfg,
		Stores: stores,
		Redis:  redisClient,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	guard := middleware.NewTokenAuth(cfg.Auth.APIToken, cfg.Auth.APITokenHash)
	if !guard.Enabled() {
		log.Warn("no API token configured, the API is open")
	}
	limiter := middleware.NewRateLimiter(cfg.Deploy.RatePerMinute, log.WithField("service", "ratelimit"))
	defer limiter.Close()

	handler, err := httpapi.NewHandler(application, httpapi.Options{
		APIGuard:      guard.Handler,
		DeployLimit:   limiter.Handler,
		AuditFilePath: auditFile,
		Logger:        log.WithField("service", "httpapi"),
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	cors := middleware.NewCORS(splitOrigins(cfg.Server.AllowedOrigins))
	accessLog := middleware.NewRequestLogger(os.Stdout)

	root := metrics.InstrumentHandler(accessLog.Handler(cors.Handler(handler.Router())))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown incomplete")
	}
	log.Info("skydeck stopped")
	return nil
}

// openStores connects to Postgres when configured and falls back to the
// in-memory store otherwise.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	noop := func() {}
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using the in-memory store; records are lost on restart")
		return app.Stores{}, noop, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return app.Stores{}, noop, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := migrations.Apply(ctx, db.DB); err != nil {
		_ = db.Close()
		return app.Stores{}, noop, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database schema up to date")

	store := postgres.New(db)
	stores := app.Stores{
		Applications: store,
		Backups:      store,
		Analytics:    store,
		Tenants:      store,
		Files:        store,
	}
	return stores, func() { _ = db.Close() }, nil
}

// openRedis connects the visit counter backend when configured.
func openRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Infof("visit counter backed by redis at %s", cfg.Redis.Addr)
	return client, nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
