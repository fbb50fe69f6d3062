package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteOptions selects the optional parts of the route table.
type RouteOptions struct {
	// RequireAuth wraps routes that need an authenticated caller.
	RequireAuth    func(http.Handler) http.Handler
	MetricsEnabled bool
}

// Register adds the service routes to r.
func (h *Handlers) Register(r *mux.Router, opts RouteOptions) {
	// Health check and version routes (no auth required)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	auth := opts.RequireAuth
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	videos := r.PathPrefix("/videos/{id}").Subrouter()
	videos.Handle("/stream", auth(http.HandlerFunc(h.StreamDirect))).Methods(http.MethodGet, http.MethodHead)
	videos.Handle("/hls-stream-url", auth(http.HandlerFunc(h.HLSStreamURL))).Methods(http.MethodGet)

	// Token-gated; players cannot send an Authorization header per segment.
	videos.HandleFunc("/stream/{path:.*}", h.StreamHLS).Methods(http.MethodGet, http.MethodHead)
}
