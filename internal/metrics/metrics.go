// Package metrics exports Prometheus collectors for account scoring.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

var accountsScored = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fakeguard_accounts_scored_total",
	Help: "Total number of accounts scored, by risk level.",
}, []string{"risk_level"})

var batchesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fakeguard_batches_analyzed_total",
	Help: "Total number of datasets analyzed.",
})

var batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "fakeguard_batch_duration_seconds",
	Help:    "Time spent scoring a dataset.",
	Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
})

var uploadsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fakeguard_uploads_total",
	Help: "Total number of datasets uploaded, by file format.",
}, []string{"format"})

var recordsUploaded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fakeguard_records_uploaded_total",
	Help: "Total number of account records uploaded.",
})

var checksPerformed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fakeguard_checks_total",
	Help: "Total number of single-account checks.",
})

// Recorder feeds analysis outcomes into the package collectors.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveBatch records a scored dataset.
func (Recorder) ObserveBatch(result domain.BatchResult, duration time.Duration) {
	batchesAnalyzed.Inc()
	batchDuration.Observe(duration.Seconds())

	for _, a := range result.Flagged {
		accountsScored.WithLabelValues(string(a.RiskLevel)).Inc()
	}
	for _, a := range result.Clean {
		accountsScored.WithLabelValues(string(a.RiskLevel)).Inc()
	}
}

// ObserveCheck records a single-account check.
func (Recorder) ObserveCheck(analysis domain.AccountAnalysis) {
	checksPerformed.Inc()
	accountsScored.WithLabelValues(string(analysis.RiskLevel)).Inc()
}

// ObserveUpload records an upload.
func (Recorder) ObserveUpload(format string, count int) {
	uploadsReceived.WithLabelValues(format).Inc()
	recordsUploaded.Add(float64(count))
}

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fakeguard_http_requests_total",
	Help: "HTTP requests served, by route pattern and status code.",
}, []string{"method", "route", "status"})

var httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fakeguard_http_request_duration_seconds",
	Help:    "HTTP request latency, by route pattern.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// ObserveRequest records one served HTTP request. route should be the
// router pattern, not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
