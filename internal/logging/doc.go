// Package logging provides the leveled logger shared by the pipeline service
// and its tools.
//
// Levels, lowest first:
//   - DEBUG: ffmpeg argument lists, per-request detail
//   - INFO: job lifecycle transitions, startup banner
//   - WARN: non-fatal cleanup and notification failures
//   - ERROR: failed jobs, dropped events
//   - FATAL: startup errors that terminate the process
//
// The level is taken from LOG_LEVEL, or forced to DEBUG when DEBUG=true.
// ForJob returns a logger that prefixes messages with the job id.
package logging
