// Package httpapi exposes the dashboard REST API and the application
// serving layer on a gorilla/mux router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/skydeck-host/skydeck/internal/app"
	"github.com/skydeck-host/skydeck/internal/app/metrics"
	"github.com/skydeck-host/skydeck/internal/httputil"
	"github.com/skydeck-host/skydeck/pkg/logger"
)

// Options tunes the handler beyond what the application config covers.
type Options struct {
	// APIGuard wraps the /api subtree, typically the token guard. Nil means
	// no guard.
	APIGuard func(http.Handler) http.Handler
	// DeployLimit wraps the deploy endpoints, typically the per-client rate
	// limiter. Nil means unlimited.
	DeployLimit func(http.Handler) http.Handler
	// AuditFilePath appends audit entries as JSON lines when non-empty.
	AuditFilePath string
	// StatsInterval is the push period of the system stats stream.
	StatsInterval time.Duration
	Logger        *logger.Logger
}

// Handler serves the REST API.
type Handler struct {
	app           *app.Application
	audit         *auditLog
	apiGuard      func(http.Handler) http.Handler
	deployLimit   func(http.Handler) http.Handler
	statsInterval time.Duration
	log           *logger.Logger
}

// NewHandler creates a Handler for a wired application.
func NewHandler(application *app.Application, opts Options) (*Handler, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	interval := opts.StatsInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var sink auditSink
	if opts.AuditFilePath != "" {
		fs, err := newFileAuditSink(opts.AuditFilePath)
		if err != nil {
			return nil, err
		}
		sink = fs
	}

	passthrough := func(next http.Handler) http.Handler { return next }
	guard := opts.APIGuard
	if guard == nil {
		guard = passthrough
	}
	limit := opts.DeployLimit
	if limit == nil {
		limit = passthrough
	}

	return &Handler{
		app:           application,
		audit:         newAuditLog(defaultAuditEntries, sink),
		apiGuard:      guard,
		deployLimit:   limit,
		statsInterval: interval,
		log:           log,
	}, nil
}

// Router builds the route table. Health, metrics and the serving layer stay
// public; everything under /api passes the guard and the audit recorder.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/sites/{id}", h.serveApplication).Methods(http.MethodGet)
	r.HandleFunc("/sites/{id}/{path:.*}", h.serveApplicationFile).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(h.apiGuard), h.withTenant, h.recordAudit)

	api.Handle("/apps/html", h.deployLimit(http.HandlerFunc(h.deployHTML))).Methods(http.MethodPost)
	api.Handle("/apps/nodejs", h.deployLimit(http.HandlerFunc(h.deployNodeJS))).Methods(http.MethodPost)

	api.HandleFunc("/apps", h.listApplications).Methods(http.MethodGet)
	api.HandleFunc("/apps/{id}", h.getApplication).Methods(http.MethodGet)
	api.HandleFunc("/apps/{id}", h.deleteApplication).Methods(http.MethodDelete)
	api.HandleFunc("/apps/{id}/start", h.startApplication).Methods(http.MethodPost)
	api.HandleFunc("/apps/{id}/stop", h.stopApplication).Methods(http.MethodPost)
	api.HandleFunc("/apps/{id}/analytics", h.applicationAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/apps/{id}/backups", h.listBackups).Methods(http.MethodGet)
	api.HandleFunc("/apps/{id}/backups", h.createBackup).Methods(http.MethodPost)
	api.HandleFunc("/apps/{id}/restore", h.restoreApplication).Methods(http.MethodPost)

	api.HandleFunc("/domains/check", h.checkDomain).Methods(http.MethodPost)

	api.HandleFunc("/system/info", h.systemInfo).Methods(http.MethodGet)
	api.HandleFunc("/system/processes", h.systemProcesses).Methods(http.MethodGet)
	api.HandleFunc("/system/stats/ws", h.systemStatsStream).Methods(http.MethodGet)
	api.HandleFunc("/system/export", h.systemExport).Methods(http.MethodGet)

	api.HandleFunc("/templates", h.listTemplates).Methods(http.MethodGet)

	api.HandleFunc("/files", h.uploadFile).Methods(http.MethodPost)
	api.HandleFunc("/files", h.listFiles).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}/download", h.downloadFile).Methods(http.MethodGet)
	api.HandleFunc("/files/{id}", h.deleteFile).Methods(http.MethodDelete)

	api.HandleFunc("/audit", h.recentAudit).Methods(http.MethodGet)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Templates.List(r.URL.Query().Get("kind"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"templates": items})
}
