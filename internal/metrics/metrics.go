package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_pipeline_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_db_queries_total",
			Help: "Total number of job store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_db_query_duration_seconds",
			Help:    "Job store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_db_transaction_duration_seconds",
			Help:    "Duration of locked read-modify-write transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"result"}, // "commit", "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_pipeline_db_connections_open",
			Help: "Number of open job store connections",
		},
	)
)

// Event intake metrics
var (
	EventsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_pipeline_events_received_total",
			Help: "Total number of processing events received from the queue",
		},
	)

	EventsRetriedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_pipeline_events_retried_total",
			Help: "Total number of event handling retries",
		},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_events_dropped_total",
			Help: "Total number of events dropped without processing",
		},
		[]string{"reason"}, // "decode", "retries_exhausted", "job_missing", "duplicate"
	)
)

// Dispatcher metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_jobs_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_job_duration_seconds",
			Help:    "Wall time from claiming a job to its terminal status",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_pipeline_jobs_in_flight",
			Help: "Number of jobs currently held by a worker",
		},
	)

	WorkerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_pipeline_worker_queue_depth",
			Help: "Number of jobs waiting for a free worker",
		},
	)

	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_pipeline_jobs_by_status",
			Help: "Number of job records per status in the store",
		},
		[]string{"status"},
	)

	CleanupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_cleanup_failures_total",
			Help: "Post-commit failures that were logged and ignored",
		},
		[]string{"step"}, // "raw_delete", "notify", "thumbnail"
	)
)

// Transcoder metrics
var (
	ProfileTranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_profile_transcodes_total",
			Help: "Total number of per-profile transcodes",
		},
		[]string{"profile", "status"},
	)

	ProfileTranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_profile_transcode_duration_seconds",
			Help:    "Duration of a single profile transcode in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"profile"},
	)

	InspectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_inspect_duration_seconds",
			Help:    "ffprobe duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_thumbnails_total",
			Help: "Total number of poster frame captures",
		},
		[]string{"status"},
	)
)

// Storage metrics
var (
	TreeDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_pipeline_storage_tree_delete_failures_total",
			Help: "Paths that could not be removed during a tree delete",
		},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts after ESTALE",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_pipeline_filesystem_retry_duration_seconds",
			Help:    "Duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Delivery metrics
var (
	StreamTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_pipeline_stream_tokens_issued_total",
			Help: "Total number of stream access tokens minted",
		},
	)

	StreamTokenRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_stream_token_rejections_total",
			Help: "Stream requests rejected by token validation",
		},
		[]string{"reason"}, // "missing", "invalid", "expired", "job_mismatch"
	)

	BytesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_pipeline_bytes_served_total",
			Help: "Total response body bytes written by the delivery handlers",
		},
		[]string{"kind"}, // "direct", "playlist", "segment"
	)
)

// Runtime metrics
var (
	GoMemoryLimitBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_pipeline_go_memory_limit_bytes",
			Help: "Soft memory limit applied to the Go runtime, 0 when unset",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_pipeline_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
