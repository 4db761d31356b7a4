package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/skydeck-host/skydeck/internal/httputil"
)

const defaultAuditEntries = 200

// auditEntry is one recorded API request.
type auditEntry struct {
	Time       time.Time `json:"time"`
	Tenant     string    `json:"tenant,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// auditSink receives entries beyond the in-memory ring.
type auditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps the most recent API requests in a ring buffer and forwards
// them to an optional sink.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = defaultAuditEntries
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		// Sink failures must not affect request handling.
		_ = sink.Write(entry)
	}
}

// recent returns up to limit entries, newest first.
func (l *auditLog) recent(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]auditEntry, 0, limit)
	for i := len(l.entries) - 1; i >= len(l.entries)-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// fileAuditSink appends entries as JSON lines.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileAuditSink(path string) (*fileAuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &fileAuditSink{file: f}, nil
}

func (s *fileAuditSink) Write(entry auditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(line, '\n'))
	return err
}

// auditResponse captures the response status for the audit trail.
type auditResponse struct {
	http.ResponseWriter
	status int
}

func (w *auditResponse) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// recordAudit records every API request after it completes.
func (h *Handler) recordAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &auditResponse{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			Tenant:     h.tenantID(r),
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			RemoteAddr: httputil.ClientIP(r),
			UserAgent:  r.UserAgent(),
		})
	})
}

func (h *Handler) recentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := parsePositive(raw); err == nil {
			limit = parsed
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": h.audit.recent(limit),
	})
}

func parsePositive(raw string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("not positive")
	}
	return n, nil
}
