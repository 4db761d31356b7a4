package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/skydeck-host/skydeck/internal/errors"
	"github.com/skydeck-host/skydeck/internal/httputil"
)

func (h *Handler) systemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.app.SysInfo.Info(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) systemProcesses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.Error(w, apperrors.Validation("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	procs, err := h.app.SysInfo.Processes(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"processes": procs})
}

func (h *Handler) systemExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.app.SysInfo.Export(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}

var statsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API guard has already run; the dashboard may live on another
	// origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

const statsWriteWait = 10 * time.Second

// systemStatsStream pushes periodic system snapshots over a WebSocket until
// the client disconnects.
func (h *Handler) systemStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.WithError(err).Debug("stats stream upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	closed := make(chan struct{})

	// Read pump: drains control frames and detects the peer going away.
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.statsInterval)
	defer ticker.Stop()

	for {
		info, err := h.app.SysInfo.Info(ctx)
		if err != nil {
			h.log.WithError(err).Warn("stats snapshot failed")
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(statsWriteWait))
		if err := conn.WriteJSON(info); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(statsWriteWait))
			return
		}
	}
}
