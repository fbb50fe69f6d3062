// Package metrics provides Prometheus instrumentation for the video pipeline.
//
// All metrics are registered with promauto at package init and are prefixed
// with "video_pipeline_".
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: requests by method, path and status
//   - HTTPRequestDuration: request duration by method and path
//   - HTTPRequestsInFlight: requests currently being served
//
// ## Event Intake and Dispatcher Metrics
//
//   - EventsReceivedTotal, EventsRetriedTotal, EventsDroppedTotal
//   - JobsTotal: jobs reaching READY or FAILED
//   - JobDuration: claim-to-terminal wall time
//   - JobsInFlight, WorkerQueueDepth: worker pool occupancy
//   - JobsByStatus: store contents, refreshed by the Collector
//   - CleanupFailuresTotal: logged-only failures after a job committed
//
// ## Transcoder Metrics
//
//   - ProfileTranscodesTotal and ProfileTranscodeDuration per profile
//   - InspectDuration: ffprobe latency
//   - ThumbnailsTotal: poster frame captures by status
//
// ## Storage Metrics
//
//   - TreeDeleteFailures: paths left behind by DeleteTree
//   - Filesystem retry counters for NFS ESTALE handling, labeled by volume
//
// ## Delivery Metrics
//
//   - StreamTokensIssued, StreamTokenRejections
//   - BytesServed by response kind
//
// Gauges that reflect state owned elsewhere (queue depth, jobs by status) are
// refreshed by a Collector polling a StatsProvider.
package metrics
