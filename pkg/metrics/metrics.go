package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mesh metrics
	MeshPeersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "serval_mesh_peers_total",
			Help: "Total number of known mesh peers by role",
		},
		[]string{"role"},
	)

	// Scheduler metrics
	JobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "serval_scheduler_jobs_active",
			Help: "Number of jobs currently tracked by the scheduler, by state",
		},
		[]string{"state"},
	)

	JobsFinished = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "serval_scheduler_jobs_finished",
			Help: "Number of jobs that have reached a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serval_scheduler_tick_duration_seconds",
			Help:    "Time taken to run one scheduler tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Blob storage metrics
	BlobWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serval_blob_writes_total",
			Help: "Total number of blob store writes, by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	BlobReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serval_blob_reads_total",
			Help: "Total number of blob store reads, by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	// Wasm engine metrics
	JobExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serval_engine_execution_duration_seconds",
			Help:    "Time taken to execute a Wasm job, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	JobExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serval_engine_executions_total",
			Help: "Total number of Wasm job executions, by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serval_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serval_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(MeshPeersTotal)
	prometheus.MustRegister(JobsActive)
	prometheus.MustRegister(JobsFinished)
	prometheus.MustRegister(SchedulerTickDuration)
	prometheus.MustRegister(BlobWritesTotal)
	prometheus.MustRegister(BlobReadsTotal)
	prometheus.MustRegister(JobExecutionDuration)
	prometheus.MustRegister(JobExecutionsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
