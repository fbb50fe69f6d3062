package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

const (
	// DefaultMemoryRatio caps the Go share of the container limit.
	DefaultMemoryRatio = 0.85

	// DefaultWorkerReserve is the memory set aside for each ffmpeg process.
	DefaultWorkerReserve int64 = 512 << 20

	minHeapShare = 0.10
)

// Source values reported in ConfigResult.
const (
	SourceGOMEMLIMIT  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured     bool
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
	Reserved       int64 // total bytes held back for transcode workers
}

// Plan returns the Go heap limit for a container of containerLimit bytes
// running workers transcodes that each need reserve bytes. The result is the
// smaller of containerLimit*ratio and containerLimit minus all reserves, but
// never below 10% of the container.
func Plan(containerLimit int64, ratio float64, reserve int64, workers int) int64 {
	if containerLimit <= 0 {
		return 0
	}
	if workers < 0 {
		workers = 0
	}

	limit := int64(float64(containerLimit) * ratio)
	if rest := containerLimit - reserve*int64(workers); rest < limit {
		limit = rest
	}
	if floor := int64(float64(containerLimit) * minHeapShare); limit < floor {
		limit = floor
	}
	return limit
}

// ConfigureFromEnv applies a soft memory limit derived from MEMORY_LIMIT and
// the number of transcode workers. An explicit GOMEMLIMIT is left alone.
func ConfigureFromEnv(workers int) ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: SourceGOMEMLIMIT}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
			metrics.GoMemoryLimitBytes.Set(float64(limit))
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return ConfigResult{Source: SourceNone}
	}
	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return ConfigResult{Source: SourceNone}
	}

	ratio := DefaultMemoryRatio
	if s := os.Getenv("MEMORY_RATIO"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 && v <= 1 {
			ratio = v
		} else {
			logging.Warn("Invalid MEMORY_RATIO %q (want 0.0-1.0), using default %.2f", s, DefaultMemoryRatio)
		}
	}

	reserve := DefaultWorkerReserve
	if s := os.Getenv("TRANSCODE_MEMORY_RESERVE"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			reserve = v
		} else {
			logging.Warn("Invalid TRANSCODE_MEMORY_RESERVE %q, using default %s", s, formatBytes(DefaultWorkerReserve))
		}
	}

	goLimit := Plan(containerLimit, ratio, reserve, workers)
	debug.SetMemoryLimit(goLimit)
	metrics.GoMemoryLimitBytes.Set(float64(goLimit))

	logging.Info("Configured GOMEMLIMIT: %s of %s container limit (%d worker(s) x %s reserved for ffmpeg)",
		formatBytes(goLimit), formatBytes(containerLimit), workers, formatBytes(reserve))

	return ConfigResult{
		Configured:     true,
		Source:         SourceMemoryLimit,
		ContainerLimit: containerLimit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
		Reserved:       reserve * int64(max(workers, 0)),
	}
}

// formatBytes formats bytes into human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
