package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	"github.com/skydeck-host/skydeck/internal/app/domain/backup"
	"github.com/skydeck-host/skydeck/internal/app/services/deployments"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/internal/httputil"
)

func (h *Handler) deployHTML(w http.ResponseWriter, r *http.Request) {
	h.deploy(w, r, application.KindHTML)
}

func (h *Handler) deployNodeJS(w http.ResponseWriter, r *http.Request) {
	h.deploy(w, r, application.KindNodeJS)
}

// deploy parses the multipart deploy form shared by both kinds. The nodejs
// form additionally accepts manifest, start_command and port.
func (h *Handler) deploy(w http.ResponseWriter, r *http.Request, kind application.Kind) {
	maxBytes := h.app.Config.Deploy.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		httputil.Error(w, apperrors.Validation("invalid or oversized multipart form: "+err.Error()))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		httputil.Error(w, apperrors.Validation("name is required"))
		return
	}

	input := deployments.DeployInput{
		TenantID:    h.tenantID(r),
		Kind:        kind,
		Name:        name,
		Description: strings.TrimSpace(r.FormValue("description")),
		Public:      parseBool(r.FormValue("public")),
		Requester: deployments.Requester{
			IP:        httputil.ClientIP(r),
			UserAgent: r.UserAgent(),
		},
	}

	if kind == application.KindNodeJS {
		input.StartCommand = strings.TrimSpace(r.FormValue("start_command"))
		if portValue := strings.TrimSpace(r.FormValue("port")); portValue != "" {
			port, err := strconv.Atoi(portValue)
			if err != nil {
				httputil.Error(w, apperrors.Validation("port must be an integer"))
				return
			}
			input.Port = port
		}
		if manifest := r.FormValue("manifest"); manifest != "" {
			input.Manifest = []byte(manifest)
		}
	}

	upload, err := readUpload(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	input.Upload = upload

	created, err := h.app.Deployments.Deploy(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toApplicationResponse(created))
}

// readUpload pulls the "file" part out of the parsed multipart form.
func readUpload(r *http.Request) (deployments.Upload, error) {
	part, header, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return deployments.Upload{}, apperrors.MissingUpload()
		}
		return deployments.Upload{}, apperrors.Validation("read upload: " + err.Error())
	}
	defer part.Close()

	content, err := io.ReadAll(part)
	if err != nil {
		return deployments.Upload{}, apperrors.Storage("read upload", err)
	}
	return deployments.Upload{Filename: header.Filename, Content: content}, nil
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.app.Deployments.List(r.Context(), h.tenantID(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"applications": toApplicationResponses(apps),
	})
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.app.Deployments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) deleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Deployments.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startApplication(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, application.StatusRunning)
}

func (h *Handler) stopApplication(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, application.StatusStopped)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status application.Status) {
	updated, err := h.app.Deployments.SetStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(updated))
}

func (h *Handler) checkDomain(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		httputil.Error(w, apperrors.Validation("name is required"))
		return
	}

	domain, available, suggestions, err := h.app.Domains.Check(r.Context(), payload.Name)
	if err != nil {
		httputil.Error(w, apperrors.Storage("check domain", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"domain":      domain,
		"available":   available,
		"suggestions": suggestions,
	})
}

func (h *Handler) applicationAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Analytics.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) listBackups(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Backups.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"backups": toBackupResponses(items),
	})
}

func (h *Handler) createBackup(w http.ResponseWriter, r *http.Request) {
	created, err := h.app.Backups.Create(r.Context(), mux.Vars(r)["id"], backup.TriggerManual)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toBackupResponse(created))
}

func (h *Handler) restoreApplication(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BackupID string `json:"backup_id"`
	}
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.BackupID) == "" {
		httputil.Error(w, apperrors.Validation("backup_id is required"))
		return
	}

	restored, err := h.app.Backups.Restore(r.Context(), mux.Vars(r)["id"], payload.BackupID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toApplicationResponse(restored))
}
