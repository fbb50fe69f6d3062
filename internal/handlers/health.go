package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"video-pipeline/internal/logging"
	"video-pipeline/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

const pingTimeout = 2 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`

	// Worker pool load
	Workers       int `json:"workers"`
	QueueCapacity int `json:"queueCapacity"`
	QueueDepth    int `json:"queueDepth"`
	JobsInFlight  int `json:"jobsInFlight"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbErr := h.pingStore(r.Context())

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        dbErr == nil,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Database:     "ok",
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.pool != nil {
		response.Workers = h.pool.Workers()
		response.QueueCapacity = h.pool.Capacity()
		response.QueueDepth = h.pool.QueueDepth()
		response.JobsInFlight = h.pool.InFlight()
	}

	statusCode := http.StatusOK
	if dbErr != nil {
		response.Status = statusDegraded
		response.Database = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONStatusCode(w, statusCode, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the job store answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.pingStore(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeJSONStatus(w, http.StatusOK, "ready")
}

func (h *Handlers) pingStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.Warn("Job store ping failed: %v", err)
		return err
	}
	return nil
}
