package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var syncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ocrsync_status_sync_total",
	Help: "Status sync attempts labelled by result",
}, []string{"result"})

var gateOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ocrsync_materialization_outcomes_total",
	Help: "Confidence gate outcomes labelled by decision",
}, []string{"outcome"})

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ocrsync_http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ocrsync_http_request_duration_seconds",
	Help:    "Request duration labelled by path",
	Buckets: prometheus.DefBuckets,
}, []string{"path"})

// SyncResult records one sync attempt: updated, unchanged, unknown_status
// or error.
func SyncResult(result string) {
	syncTotal.WithLabelValues(result).Inc()
}

// GateOutcome records one materialization decision: auto_created,
// manual_review or failed.
func GateOutcome(outcome string) {
	gateOutcomes.WithLabelValues(outcome).Inc()
}

func HTTPRequest(path, status string) {
	httpRequestsTotal.WithLabelValues(path, status).Inc()
}

func ObserveHTTPDuration(path string, seconds float64) {
	httpRequestDuration.WithLabelValues(path).Observe(seconds)
}

// StatusRecorder captures the response code for metrics middleware.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}
