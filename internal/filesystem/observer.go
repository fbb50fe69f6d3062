package filesystem

// Observer records filesystem retry metrics. The metrics package provides the
// implementation so that filesystem does not import it.
type Observer interface {
	// op is the retried operation: "stat", "open", "readdir", "remove".
	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveRetryDuration(op, volume string, durationSeconds float64)
	ObserveStaleError(op, volume string)
}

// defaultObserver is nil in tests; recording is skipped then.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
