package middleware

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skydeck-host/skydeck/internal/httputil"
)

// RequestLogger writes one structured access-log line per request. Access
// logging is kept separate from application logging so the two streams can
// go to different destinations.
type RequestLogger struct {
	log zerolog.Logger
}

// NewRequestLogger creates an access logger writing to out.
func NewRequestLogger(out io.Writer) *RequestLogger {
	return &RequestLogger{
		log: zerolog.New(out).With().Timestamp().Str("component", "http").Logger(),
	}
}

type loggedResponse struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *loggedResponse) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggedResponse) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Handler returns the request logging middleware handler. Each request gets
// an X-Request-ID, honoring one supplied by the caller.
func (l *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &loggedResponse{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		l.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("client", httputil.ClientIP(r)).
			Int("status", rec.status).
			Int64("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
