package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/internal/httputil"
)

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.app.Config.Deploy.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		httputil.Error(w, apperrors.Validation("invalid or oversized multipart form: "+err.Error()))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, apperrors.MissingUpload())
		return
	}
	defer part.Close()

	content, err := io.ReadAll(part)
	if err != nil {
		httputil.Error(w, apperrors.Storage("read upload", err))
		return
	}

	record, err := h.app.Uploads.Save(r.Context(), h.tenantID(r), header.Filename, content)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toFileResponse(record))
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.app.Uploads.List(r.Context(), h.tenantID(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"files": toFileResponses(files)})
}

func (h *Handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	record, reader, err := h.app.Uploads.Open(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.Error(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", record.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+record.Name+`"`)
	if _, err := io.Copy(w, reader); err != nil {
		h.log.WithError(err).Warnf("stream file %s", record.ID)
	}
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Uploads.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
