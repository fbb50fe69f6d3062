// Package main provides the entry point for the video pipeline service.
//
// The service turns uploaded videos into multi-resolution HLS streams and
// serves them. An upload collaborator creates a job record (status UPLOADED)
// and publishes a processing event; this process consumes the event,
// transcodes on a bounded worker pool and serves the result.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads environment variables and validates directories,
//     then sizes GOMEMLIMIT around the ffmpeg worker reserve
//  2. Job Store: Opens SQLite (default) or PostgreSQL
//  3. Component Initialization:
//     - Storage Gateway rooted at STORAGE_ROOT
//     - Transcode Engine (ffmpeg) with the Media Inspector (ffprobe)
//     - Worker pool sized from TRANSCODE_WORKERS / GOMAXPROCS
//     - Job Dispatcher with poster-frame capture and notifier
//     - Metrics Collector: Updates Prometheus gauges every minute
//     - RabbitMQ event consumer with a fixed retry policy
//  4. HTTP Server Setup: Delivery routes, health, version, metrics
//  5. Graceful Shutdown: Handles SIGINT/SIGTERM
//
// # HTTP Server
//
//   - GET /videos/{id}/stream?file= : range-capable serving to the owner (bearer JWT)
//   - GET /videos/{id}/hls-stream-url : signed master playlist URL (bearer JWT)
//   - GET /videos/{id}/stream/{path}?token= : token-gated playlists and segments
//   - GET /healthz, /livez, /readyz, /version, /metrics
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests
//  2. Stop the event consumer; unacknowledged events return to the queue
//  3. Drain the worker pool (30s); jobs still running are left PROCESSING
//     for recovery with jobctl requeue
//  4. Stop metrics collector
//  5. Close database connections
//
// # Related Packages
//
//   - [video-pipeline/internal/dispatcher]: Job state machine
//   - [video-pipeline/internal/transcoder]: HLS transcoding
//   - [video-pipeline/internal/handlers]: Delivery HTTP handlers
//   - [video-pipeline/internal/events]: RabbitMQ consumer and publisher
//   - [video-pipeline/internal/startup]: Configuration and initialization
package main
