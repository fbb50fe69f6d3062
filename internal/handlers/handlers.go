package handlers

import (
	"time"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/storage"
	"video-pipeline/internal/streaming"
	"video-pipeline/internal/token"
)

// PoolStats reports transcode worker load for the health endpoints.
type PoolStats interface {
	QueueDepth() int
	InFlight() int
	Workers() int
	Capacity() int
}

// Config holds the delivery settings that are not components.
type Config struct {
	// PublicBaseURL prefixes the URLs returned by HLSStreamURL. When empty
	// the URL is built from the request's scheme and host.
	PublicBaseURL string
	Stream        streaming.Config
}

type Handlers struct {
	store         jobs.Store
	files         *storage.Gateway
	tokens        *token.Issuer
	pool          PoolStats
	publicBaseURL string
	stream        streaming.Config
	started       time.Time
}

func New(store jobs.Store, files *storage.Gateway, tokens *token.Issuer, pool PoolStats, cfg Config) *Handlers {
	if cfg.Stream.ChunkSize <= 0 {
		cfg.Stream = streaming.DefaultConfig()
	}
	return &Handlers{
		store:         store,
		files:         files,
		tokens:        tokens,
		pool:          pool,
		publicBaseURL: cfg.PublicBaseURL,
		stream:        cfg.Stream,
		started:       time.Now(),
	}
}
