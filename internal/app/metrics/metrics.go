// Package metrics exposes Prometheus instrumentation for the HTTP surface
// and the deployment, backup and analytics workflows.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skydeck"

// Registry is the process-wide metrics registry. A dedicated registry keeps
// the scrape output limited to what this service registers.
var Registry = prometheus.NewRegistry()

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, canonical path and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and canonical path.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		},
	)

	deploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Deployments by application kind and result.",
		},
		[]string{"kind", "result"},
	)

	deploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "End-to-end deployment latency by application kind.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	backupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backups by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	backupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Backup compression latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	restoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Backup restores by result.",
		},
		[]string{"result"},
	)

	visitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_total",
			Help:      "Served application entry pages.",
		},
	)

	analyticsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Recorded analytics events by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,
		deploymentsTotal,
		deploymentDuration,
		backupsTotal,
		backupDuration,
		restoresTotal,
		visitsTotal,
		analyticsEventsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// InstrumentHandler wraps next with request counting, latency and in-flight
// tracking. Paths are canonicalized so per-application IDs do not explode
// label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequestsInFlight.Dec()
		path := canonicalPath(r.URL.Path)
		status := statusClass(rec.status)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// canonicalPath reduces request paths to route shapes.
func canonicalPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	switch parts[0] {
	case "sites":
		if len(parts) == 1 {
			return "/sites"
		}
		if len(parts) == 2 {
			return "/sites/:id"
		}
		return "/sites/:id/*"
	case "api":
		if len(parts) < 2 {
			return "/api"
		}
		switch parts[1] {
		case "apps":
			switch len(parts) {
			case 2:
				return "/api/apps"
			case 3:
				// /api/apps/html and /api/apps/nodejs are routes, not IDs.
				if parts[2] == "html" || parts[2] == "nodejs" {
					return "/api/apps/" + parts[2]
				}
				return "/api/apps/:id"
			default:
				return "/api/apps/:id/" + strings.Join(parts[3:], "/")
			}
		case "files":
			switch len(parts) {
			case 2:
				return "/api/files"
			case 3:
				return "/api/files/:id"
			default:
				return "/api/files/:id/" + strings.Join(parts[3:], "/")
			}
		default:
			return "/" + strings.Join(parts, "/")
		}
	default:
		return "/" + parts[0]
	}
}

func statusClass(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// minDuration keeps zero-length operations visible in histograms.
const minDuration = 0.000001

// RecordDeployment records a deployment attempt.
func RecordDeployment(kind, result string, seconds float64) {
	deploymentsTotal.WithLabelValues(kind, result).Inc()
	if seconds < minDuration {
		seconds = minDuration
	}
	deploymentDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordBackup records a backup attempt.
func RecordBackup(trigger, result string, seconds float64) {
	backupsTotal.WithLabelValues(trigger, result).Inc()
	if seconds < minDuration {
		seconds = minDuration
	}
	backupDuration.Observe(seconds)
}

// RecordRestore records a restore attempt.
func RecordRestore(result string) {
	restoresTotal.WithLabelValues(result).Inc()
}

// RecordVisit records a served entry page.
func RecordVisit() {
	visitsTotal.Inc()
}

// RecordAnalyticsEvent records a persisted analytics event.
func RecordAnalyticsEvent(kind string) {
	analyticsEventsTotal.WithLabelValues(kind).Inc()
}
