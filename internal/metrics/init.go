package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(profiles []string) {
	volumes := []string{"storage", "database", "unknown"}
	for _, op := range []string{"stat", "open", "readdir", "remove"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, status := range []string{"UPLOADED", "PROCESSING", "READY", "FAILED"} {
		JobsByStatus.WithLabelValues(status)
	}
	JobsTotal.WithLabelValues("READY")
	JobsTotal.WithLabelValues("FAILED")

	for _, reason := range []string{"decode", "retries_exhausted", "job_missing", "duplicate"} {
		EventsDroppedTotal.WithLabelValues(reason)
	}
	for _, step := range []string{"raw_delete", "notify", "thumbnail"} {
		CleanupFailuresTotal.WithLabelValues(step)
	}

	for _, p := range profiles {
		ProfileTranscodesTotal.WithLabelValues(p, "success")
		ProfileTranscodesTotal.WithLabelValues(p, "error")
		ProfileTranscodeDuration.WithLabelValues(p)
	}
	ThumbnailsTotal.WithLabelValues("success")
	ThumbnailsTotal.WithLabelValues("error")

	for _, reason := range []string{"missing", "invalid", "expired", "job_mismatch"} {
		StreamTokenRejections.WithLabelValues(reason)
	}
	for _, kind := range []string{"direct", "playlist", "segment"} {
		BytesServed.WithLabelValues(kind)
	}

	for _, op := range []string{"find", "save", "update", "list", "count"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
