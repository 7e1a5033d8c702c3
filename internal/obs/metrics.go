package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Audit pipeline metrics
var (
	JiraRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_requests_total",
			Help: "Requests issued to the Jira REST API.",
		},
		[]string{"endpoint", "status"},
	)

	JiraRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jira_request_duration_seconds",
			Help:    "Jira REST API latencies in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"endpoint"},
	)

	// DegradedTotal counts units replaced by defaults or dropped, per stage.
	DegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_degraded_total",
			Help: "Pipeline units degraded to defaults or dropped.",
		},
		[]string{"stage"},
	)

	RiskLevelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_risk_levels_total",
			Help: "Assembled role entries by risk level.",
		},
		[]string{"level"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_runs_total",
			Help: "Audit runs by outcome.",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "audit_run_duration_seconds",
		Help:    "Wall time of complete audit runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ProjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_projects_total",
			Help: "Project audit records by outcome.",
		},
		[]string{"outcome"},
	)

	AnalyticsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_requests_total",
			Help: "Requests to the analytics backend.",
		},
		[]string{"op", "outcome"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			JiraRequestsTotal, JiraRequestDuration,
			DegradedTotal, RiskLevelsTotal,
			RunsTotal, RunDuration, ProjectsTotal,
			AnalyticsRequestsTotal,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var knownPaths = map[string]bool{
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/v1/info":             true,
	"/v1/audits":           true,
	"/v1/audits/status":    true,
	"/v1/audits/last-scan": true,
	"/v1/audits/events":    true,
	"/v1/query":            true,
}

// CanonicalPath collapses unknown paths into a single label value so probes
// against random URLs cannot blow up metric cardinality.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	if knownPaths[p] {
		return p
	}
	return "/:unknown"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush and deadlines.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
