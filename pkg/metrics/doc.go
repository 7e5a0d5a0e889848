/*
Package metrics provides Prometheus metrics collection and exposition for
a mesh agent.

Metrics are defined as package-level variables registered once from init(),
the same pattern the teacher's metrics package uses, and exposed over HTTP
for scraping.

# Metrics Catalog

Mesh:

serval_mesh_peers_total{role}:
  - Type: Gauge
  - Total known mesh peers by role (scheduler/runner/storage/observer).

Scheduler:

serval_scheduler_jobs_active{state}:
  - Type: Gauge
  - Jobs currently tracked by the scheduler, by state (unassigned/in_progress).

serval_scheduler_jobs_finished{outcome}:
  - Type: Gauge
  - Jobs that reached a terminal state, by outcome (completed/failed).

serval_scheduler_tick_duration_seconds:
  - Type: Histogram
  - Time taken to run one scheduler tick.

Blob storage:

serval_blob_writes_total{tier, outcome}:
  - Type: Counter
  - Blob store writes by tier (local/s3/proxy) and outcome (ok/error).

serval_blob_reads_total{tier, outcome}:
  - Type: Counter
  - Blob store reads by tier and outcome.

Wasm engine:

serval_engine_execution_duration_seconds{outcome}:
  - Type: Histogram
  - Wasm job execution duration, by outcome (ok/error/timeout).

serval_engine_executions_total{outcome}:
  - Type: Counter
  - Total Wasm job executions, by outcome.

API:

serval_api_requests_total{method, status}:
  - Type: Counter
  - Total API requests by method and response status.

serval_api_request_duration_seconds{method}:
  - Type: Histogram
  - API request duration in seconds.

# Collector

Collector (collector.go) polls pkg/scheduler and pkg/mesh every 15 seconds
and sets the gauges above from a snapshot, the same poll-and-Set shape the
teacher's Collector uses against the cluster manager. The API request
counter and duration histogram are updated inline by pkg/api's request
middleware. The tick
duration, blob read/write and Wasm execution metrics are registered and
exposed, but no code in this module updates them.

# Health

health.go adapts the teacher's HealthChecker unchanged in shape: components
register themselves by name, GetHealth reports overall status, and
GetReadiness additionally requires the critical components — mesh,
storage, scheduler — to be registered and healthy.

# Usage

	import "github.com/serval-mesh/agent/pkg/metrics"

	metrics.MeshPeersTotal.WithLabelValues("runner").Set(3)
	metrics.BlobWritesTotal.WithLabelValues("local", "ok").Inc()

	timer := metrics.NewTimer()
	// ... execute job ...
	timer.ObserveDurationVec(metrics.JobExecutionDuration, "ok")

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
