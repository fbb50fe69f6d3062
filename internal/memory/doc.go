// Package memory sizes the Go runtime soft memory limit (GOMEMLIMIT) for a
// container that also runs ffmpeg child processes.
//
// The Go heap of this service is small; most memory is used by the ffmpeg
// processes started for each transcode worker, which the Go runtime cannot
// see. [ConfigureFromEnv] therefore reserves a fixed amount per worker and
// gives the Go heap what is left, capped by a ratio of the container limit.
//
// # Environment Variables
//
//   - GOMEMLIMIT: Standard Go variable; when set it wins and nothing is changed
//   - MEMORY_LIMIT: Container memory limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: Upper bound of the Go share of MEMORY_LIMIT (default: 0.85)
//   - TRANSCODE_MEMORY_RESERVE: Bytes reserved per transcode worker (default: 512MiB)
//
// Kubernetes example:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//
// Call [ConfigureFromEnv] early in main, once the worker count is known.
package memory
