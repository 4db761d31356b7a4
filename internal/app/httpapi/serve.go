package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/internal/httputil"
)

// serveApplication streams an application's entry page. Serving an entry
// page counts a visit; assets under sub-paths do not.
func (h *Handler) serveApplication(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveServable(w, r)
	if !ok {
		return
	}

	if app.Kind == application.KindNodeJS {
		h.countVisit(app.ID, r, "/")
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"id":            app.ID,
			"name":          app.Name,
			"kind":          string(app.Kind),
			"domain":        app.Domain,
			"start_command": app.StartCommand,
			"port":          app.Port,
			"note":          "nodejs applications are catalogued, not executed",
		})
		return
	}

	entry, err := findEntryFile(app.Path)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	h.countVisit(app.ID, r, "/")
	http.ServeFile(w, r, entry)
}

// serveApplicationFile streams one named file from the application
// directory so relative assets resolve.
func (h *Handler) serveApplicationFile(w http.ResponseWriter, r *http.Request) {
	app, ok := h.resolveServable(w, r)
	if !ok {
		return
	}
	if app.Kind != application.KindHTML {
		httputil.NotFound(w, "application has no servable files")
		return
	}

	rel := mux.Vars(r)["path"]
	target, err := securePath(app.Path, rel)
	if err != nil {
		httputil.Error(w, apperrors.Validation("invalid path"))
		return
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		httputil.NotFound(w, "file not found")
		return
	}
	http.ServeFile(w, r, target)
}

// resolveServable loads the application and enforces the serving rules:
// unknown and stopped applications are both a 404.
func (h *Handler) resolveServable(w http.ResponseWriter, r *http.Request) (application.Application, bool) {
	app, err := h.app.Deployments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.Error(w, err)
		return application.Application{}, false
	}
	if app.Status != application.StatusRunning {
		httputil.NotFound(w, "application is stopped")
		return application.Application{}, false
	}
	return app, true
}

// countVisit records the visit off the serving path.
func (h *Handler) countVisit(appID string, r *http.Request, path string) {
	ip := httputil.ClientIP(r)
	agent := r.UserAgent()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.app.Analytics.RecordVisit(ctx, appID, ip, agent, path); err != nil {
			h.log.WithError(err).Warnf("record visit for %s", appID)
		}
	}()
}

// findEntryFile picks index.html when present, otherwise the
// lexicographically first file with an .html extension.
func findEntryFile(dir string) (string, error) {
	index := filepath.Join(dir, "index.html")
	if info, err := os.Stat(index); err == nil && !info.IsDir() {
		return index, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", apperrors.Storage("read application directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".html") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", apperrors.NotFound("entry page", "")
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// securePath joins rel onto root and refuses escapes.
func securePath(root, rel string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(rel))
	target := filepath.Join(root, cleaned)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", os.ErrPermission
	}
	return target, nil
}
