package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"video-pipeline/internal/database"
	"video-pipeline/internal/dispatcher"
	"video-pipeline/internal/events"
	"video-pipeline/internal/filesystem"
	"video-pipeline/internal/handlers"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/mediainfo"
	"video-pipeline/internal/memory"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/middleware"
	"video-pipeline/internal/notify"
	"video-pipeline/internal/startup"
	"video-pipeline/internal/storage"
	"video-pipeline/internal/thumbnail"
	"video-pipeline/internal/token"
	"video-pipeline/internal/transcoder"
	"video-pipeline/internal/workers"

	"github.com/gorilla/mux"
)

const shutdownTimeout = 30 * time.Second

// statsAdapter refreshes the connection gauge alongside the dispatcher stats.
type statsAdapter struct {
	db   interface{ UpdateDBMetrics() }
	disp metrics.StatsProvider
}

// GetStats implements metrics.StatsProvider
func (a *statsAdapter) GetStats(ctx context.Context) (metrics.Stats, error) {
	a.db.UpdateDBMetrics()
	return a.disp.GetStats(ctx)
}

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv(config.TranscodeWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"storage":  config.StorageRoot,
		"database": config.DatabaseDir,
	}))

	// Initialize database
	dbStart := time.Now()
	db, err := database.Open(ctx, config.DatabaseDriver, config.DatabaseDSN())
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(db.Driver(), time.Since(dbStart))

	files, err := storage.New(config.StorageRoot)
	if err != nil {
		startup.LogFatal("Failed to initialize storage: %v", err)
	}

	// Initialize transcoder
	engine := transcoder.New(config.FFmpegPath, mediainfo.New(config.FFprobePath), files)
	profileNames := transcoder.ProfileNames(engine.Profiles())
	startup.LogTranscoderInit(config.FFmpegPath, config.FFprobePath, profileNames)

	metrics.InitializeMetrics(profileNames)
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, startup.GoVersion).Set(1)

	startup.LogWorkerPoolInit(config.TranscodeWorkers, config.TranscodeQueue)
	pool := workers.NewPool(config.TranscodeWorkers, config.TranscodeQueue)

	disp := dispatcher.New(db, engine, files, notify.New(config.SMTP), pool,
		dispatcher.WithThumbnailer(thumbnail.New(config.FFmpegPath, files)))

	collector := metrics.NewCollector(&statsAdapter{db: db, disp: disp}, time.Minute)
	collector.Start()

	// Start event consumer in background (reconnects until ctx ends)
	startup.LogConsumerInit(config.AMQPURL, config.AMQPQueue, config.EventMaxRetries, config.EventRetryInterval)
	consumer := events.NewConsumer(events.ConsumerConfig{
		URL:           config.AMQPURL,
		Queue:         config.AMQPQueue,
		Prefetch:      config.AMQPPrefetch,
		MaxRetries:    config.EventMaxRetries,
		RetryInterval: config.EventRetryInterval,
	}, disp.Receive)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Event consumer stopped: %v", err)
		}
	}()
	startup.LogConsumerStarted()

	issuer, err := token.NewIssuer(config.StreamTokenSecret, token.WithTTL(config.StreamTokenTTL))
	if err != nil {
		startup.LogFatal("Failed to initialize stream tokens: %v", err)
	}

	// Initialize handlers
	h := handlers.New(db, files, issuer, pool, handlers.Config{PublicBaseURL: config.PublicBaseURL})

	// Setup router
	router := setupRouter(h, config)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	// Create server
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // streaming renews per-chunk deadlines
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		startup.LogServerStarted(startup.ServerConfig{
			Port:            config.Port,
			MetricsEnabled:  config.MetricsEnabled,
			StartupDuration: time.Since(startTime),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		startup.LogShutdownInitiated("signal")
	case err := <-serverErr:
		logging.Error("Server error: %v", err)
		startup.LogShutdownInitiated("server error")
		stop()
	}

	shutdown(srv, consumerDone, collector, pool, engine, db)
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	h.Register(r, handlers.RouteOptions{
		RequireAuth:    middleware.RequireBearer(config.AuthSecret),
		MetricsEnabled: config.MetricsEnabled,
	})
	return r
}

type closer interface{ Close() error }

func shutdown(srv *http.Server, consumerDone <-chan struct{}, collector *metrics.Collector, pool *workers.Pool, engine *transcoder.Engine, db closer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping event consumer")
	select {
	case <-consumerDone:
		startup.LogShutdownStepComplete("Event consumer stopped")
	case <-ctx.Done():
		logging.Warn("Event consumer did not stop in time")
	}

	startup.LogShutdownStep("Draining worker pool")
	if err := pool.Shutdown(ctx); err != nil {
		logging.Warn("Worker pool drain incomplete, running jobs stay PROCESSING: %v", err)
	} else {
		startup.LogShutdownStepComplete("Worker pool drained")
	}

	startup.LogShutdownStep("Stopping metrics collector")
	collector.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Cleaning up transcoder")
	engine.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	startup.LogShutdownStep("Closing database")
	if err := db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
