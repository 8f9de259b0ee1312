// Package metrics exposes the Prometheus metrics of the bulk compliance job.
// Metrics are defined with promauto in the package that owns them:
//
// Core client (pkg/client):
//   - drs_core_requests_total{status} (Counter): imei-batch calls by HTTP status
//   - drs_core_request_duration_seconds (Histogram): imei-batch call latency
//   - drs_core_errors_total{class} (Counter): failed calls by error class
//
// Fetch (pkg/fetch):
//   - drs_batches_failed_total (Counter): batch calls that failed in any round
//   - drs_retry_rounds_total (Counter): retry rounds started
//   - drs_retry_backoff_seconds (Histogram): wait before each retry round
//   - drs_unprocessed_imeis_total (Counter): IMEIs dropped after the last round
//
// Rate limiting (pkg/ratelimit):
//   - drs_ratelimit_waits_total{backend} (Counter): requests delayed by the limiter
//   - drs_ratelimit_window_requests (Gauge): requests in the current shared window
//   - drs_ratelimit_errors_total (Counter): shared limiter backend errors
//
// Reports (pkg/report):
//   - drs_compliance_status_total{bucket} (Counter): classified records by bucket
//   - drs_reports_written_total (Counter): report files written
//
// Example queries:
//
//	# Share of batch calls failing
//	rate(drs_batches_failed_total[5m]) / sum(rate(drs_core_requests_total[5m]))
//
//	# P95 core latency
//	histogram_quantile(0.95, rate(drs_core_request_duration_seconds_bucket[5m]))
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all job metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric family of the job.
var Names = []string{
	"drs_core_requests_total",
	"drs_core_request_duration_seconds",
	"drs_core_errors_total",
	"drs_batches_failed_total",
	"drs_retry_rounds_total",
	"drs_retry_backoff_seconds",
	"drs_unprocessed_imeis_total",
	"drs_ratelimit_waits_total",
	"drs_ratelimit_window_requests",
	"drs_ratelimit_errors_total",
	"drs_compliance_status_total",
	"drs_reports_written_total",
}

// Handler serves the default gatherer for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}
