package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/transcoder"
	"video-pipeline/internal/workers"
)

// Transcoder produces the HLS rendition set for a source file.
type Transcoder interface {
	Transcode(ctx context.Context, sourceKey, ownerID, jobID string) (*transcoder.Result, error)
}

// Thumbnailer captures a poster frame and returns its storage key.
type Thumbnailer interface {
	Capture(ctx context.Context, sourceKey, ownerID, jobID string, durationMillis int64) (string, error)
}

// RawFiles is the part of the storage gateway used to remove sources.
type RawFiles interface {
	Exists(key string) bool
	Delete(key string) (bool, error)
}

// Pool runs jobs off the intake path.
type Pool interface {
	Submit(name string, fn workers.Task) error
	QueueDepth() int
	InFlight() int
}

// errNotClaimable refuses a claim without writing anything.
var errNotClaimable = errors.New("job is not in UPLOADED state")

// Dispatcher moves jobs through UPLOADED -> PROCESSING -> READY|FAILED.
type Dispatcher struct {
	store    jobs.Store
	engine   Transcoder
	thumbs   Thumbnailer
	files    RawFiles
	notifier jobs.Notifier
	pool     Pool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithThumbnailer enables poster frame capture after each transcode.
func WithThumbnailer(t Thumbnailer) Option {
	return func(d *Dispatcher) { d.thumbs = t }
}

// New wires a Dispatcher. notifier may be nil.
func New(store jobs.Store, engine Transcoder, files RawFiles, notifier jobs.Notifier, pool Pool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		engine:   engine,
		files:    files,
		notifier: notifier,
		pool:     pool,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Receive hands ev to the worker pool and returns at once. The error from
// Submit (queue full, pool closed) is returned so the transport can retry.
func (d *Dispatcher) Receive(_ context.Context, ev jobs.Event) error {
	if err := d.pool.Submit("job "+ev.JobID, func(ctx context.Context) {
		d.Process(ctx, ev)
	}); err != nil {
		return fmt.Errorf("queue job %s: %w", ev.JobID, err)
	}
	logging.ForJob(ev.JobID).Debug("queued (%d waiting)", d.pool.QueueDepth())
	return nil
}

// Process runs one event to completion on the calling goroutine.
func (d *Dispatcher) Process(ctx context.Context, ev jobs.Event) {
	log := logging.ForJob(ev.JobID)

	if ctx.Err() != nil {
		log.Warn("not started, shutting down")
		return
	}

	job, err := d.store.Update(ctx, ev.JobID, func(j *jobs.Job) error {
		if j.Status != jobs.StatusUploaded {
			return errNotClaimable
		}
		j.Status = jobs.StatusProcessing
		j.FailureReason = ""
		if ev.NotifyAddress != "" {
			j.NotifyAddress = ev.NotifyAddress
		}
		return nil
	})
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		log.Warn("no job record, dropping event")
		metrics.EventsDroppedTotal.WithLabelValues("job_missing").Inc()
		return
	case errors.Is(err, errNotClaimable):
		d.duplicate(ctx, job)
		return
	case err != nil:
		log.Error("claim failed, job left %s: %v", jobs.StatusUploaded, err)
		return
	}

	if job.OriginalPath == "" {
		job.OriginalPath = ev.OriginalPath
	}
	d.run(ctx, job, job.NotifyAddress)
}

// duplicate handles redelivery for a job that was already claimed.
func (d *Dispatcher) duplicate(ctx context.Context, job *jobs.Job) {
	log := logging.ForJob(job.ID)
	metrics.EventsDroppedTotal.WithLabelValues("duplicate").Inc()

	switch {
	case job.Status == jobs.StatusReady:
		log.Info("already %s, duplicate delivery; cleaning up source only", job.Status)
		d.removeRaw(job)
	case job.Status == jobs.StatusProcessing:
		log.Info("already in flight, dropping duplicate delivery")
	case job.Status.Terminal():
		log.Info("already %s, dropping event; use jobctl requeue to retry", job.Status)
	default:
		log.Warn("unexpected status %q, dropping event", job.Status)
	}
}

func (d *Dispatcher) run(ctx context.Context, job *jobs.Job, notifyAddress string) {
	log := logging.ForJob(job.ID)
	start := time.Now()
	log.Info("processing %s", job.OriginalPath)

	res, err := d.engine.Transcode(ctx, job.OriginalPath, job.OwnerID, job.ID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted by shutdown after %v, left %s for requeue",
				time.Since(start).Round(time.Millisecond), jobs.StatusProcessing)
			return
		}
		var known progress
		if res != nil {
			// The source was readable, so duration and poster are still recorded.
			known.durationMillis = res.DurationMillis
			known.thumbnailKey = d.thumbnail(ctx, job, res.DurationMillis)
		}
		d.fail(ctx, job, notifyAddress, jobs.Fatal("transcode", job.ID, err), known)
		return
	}

	thumbKey := d.thumbnail(ctx, job, res.DurationMillis)

	// The outcome is final once the transcode returns, so it is persisted
	// even if shutdown has begun.
	commitCtx := context.WithoutCancel(ctx)
	ready, err := d.store.Update(commitCtx, job.ID, func(j *jobs.Job) error {
		if !j.Status.CanTransition(jobs.StatusReady) {
			return fmt.Errorf("job moved to %s during processing", j.Status)
		}
		j.Status = jobs.StatusReady
		j.DurationMillis = res.DurationMillis
		if j.ResolutionArtifacts == nil {
			j.ResolutionArtifacts = make(map[string]string)
		}
		j.ResolutionArtifacts[jobs.ArtifactHLSMaster] = res.MasterKey
		j.ResolutionArtifacts[jobs.ArtifactHLSBase] = res.BaseKey
		j.ThumbnailKey = thumbKey
		return nil
	})
	if err != nil {
		d.fail(commitCtx, job, notifyAddress, jobs.Fatal("save result", job.ID, err),
			progress{durationMillis: res.DurationMillis, thumbnailKey: thumbKey})
		return
	}

	elapsed := time.Since(start)
	metrics.JobsTotal.WithLabelValues(string(jobs.StatusReady)).Inc()
	metrics.JobDuration.Observe(elapsed.Seconds())
	log.Info("%s in %v with profiles %v", jobs.StatusReady, elapsed.Round(time.Millisecond), res.Profiles)

	if d.notifier != nil {
		if err := d.notifier.NotifySuccess(commitCtx, notifyAddress, jobName(ready)); err != nil {
			log.Warn("%v", jobs.Cleanup("notify success", job.ID, err))
			metrics.CleanupFailuresTotal.WithLabelValues("notify").Inc()
		}
	}

	d.removeRaw(ready)
}

// thumbnail captures the poster frame. Failure only clears the key.
func (d *Dispatcher) thumbnail(ctx context.Context, job *jobs.Job, durationMillis int64) string {
	if d.thumbs == nil {
		return ""
	}
	key, err := d.thumbs.Capture(ctx, job.OriginalPath, job.OwnerID, job.ID, durationMillis)
	if err != nil {
		logging.ForJob(job.ID).Warn("%v", jobs.Cleanup("thumbnail", job.ID, err))
		metrics.CleanupFailuresTotal.WithLabelValues("thumbnail").Inc()
		return ""
	}
	return key
}

// progress is what a failed job had learned before it stopped.
type progress struct {
	durationMillis int64
	thumbnailKey   string
}

// fail records FAILED together with any known progress, then notifies.
// The raw source is kept for a retry.
func (d *Dispatcher) fail(ctx context.Context, job *jobs.Job, notifyAddress string, cause error, known progress) {
	log := logging.ForJob(job.ID)
	log.Error("%v", cause)

	ctx = context.WithoutCancel(ctx)
	failed, err := d.store.Update(ctx, job.ID, func(j *jobs.Job) error {
		if !j.Status.CanTransition(jobs.StatusFailed) {
			return fmt.Errorf("cannot fail job in %s", j.Status)
		}
		j.Status = jobs.StatusFailed
		j.FailureReason = cause.Error()
		if known.durationMillis > 0 {
			j.DurationMillis = known.durationMillis
		}
		if known.thumbnailKey != "" {
			j.ThumbnailKey = known.thumbnailKey
		}
		return nil
	})
	if err != nil {
		log.Error("could not record %s: %v", jobs.StatusFailed, err)
		return
	}

	metrics.JobsTotal.WithLabelValues(string(jobs.StatusFailed)).Inc()

	if d.notifier != nil {
		if err := d.notifier.NotifyFailure(ctx, notifyAddress, jobName(failed), cause.Error()); err != nil {
			log.Warn("%v", jobs.Cleanup("notify failure", job.ID, err))
			metrics.CleanupFailuresTotal.WithLabelValues("notify").Inc()
		}
	}
}

// removeRaw deletes the original upload once processed artifacts exist.
func (d *Dispatcher) removeRaw(job *jobs.Job) {
	log := logging.ForJob(job.ID)
	if job.OriginalPath == "" || !d.files.Exists(job.OriginalPath) {
		return
	}
	if _, err := d.files.Delete(job.OriginalPath); err != nil {
		log.Warn("%v", jobs.Cleanup("delete raw", job.ID, err))
		metrics.CleanupFailuresTotal.WithLabelValues("raw_delete").Inc()
		return
	}
	log.Info("removed source %s", job.OriginalPath)
}

// GetStats implements metrics.StatsProvider.
func (d *Dispatcher) GetStats(ctx context.Context) (metrics.Stats, error) {
	counts, err := d.store.CountByStatus(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	byStatus := make(map[string]int, len(counts))
	for s, n := range counts {
		byStatus[string(s)] = n
	}
	return metrics.Stats{
		QueueDepth:   d.pool.QueueDepth(),
		JobsInFlight: d.pool.InFlight(),
		JobsByStatus: byStatus,
	}, nil
}

func jobName(j *jobs.Job) string {
	if j.Title != "" {
		return j.Title
	}
	return j.ID
}
