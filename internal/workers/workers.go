package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the environment variable that fixes the worker count.
const OverrideEnv = "TRANSCODE_WORKERS"

// Count returns the number of workers for a task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier adjusts for task characteristics: 1.0 for CPU-bound
// encoding, higher for work that mostly waits on I/O.
//
// The limit parameter caps the worker count to prevent resource exhaustion.
// Use 0 for no limit.
//
// Can be overridden with the TRANSCODE_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
// The limit parameter caps the maximum number of workers.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}
