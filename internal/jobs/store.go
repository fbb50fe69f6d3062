package jobs

import "context"

// Store persists job records. FindByID returns ErrJobNotFound for unknown ids.
type Store interface {
	FindByID(ctx context.Context, id string) (*Job, error)
	Save(ctx context.Context, job *Job) error

	// Update loads the job under an exclusive lock, applies fn and saves the
	// result in the same transaction. If fn returns an error nothing is saved
	// and Update returns the job as loaded together with that error.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)

	ListByStatus(ctx context.Context, status Status) ([]*Job, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	Ping(ctx context.Context) error
}

// Notifier delivers job outcome messages. Callers only log returned errors.
type Notifier interface {
	NotifySuccess(ctx context.Context, address, jobName string) error
	NotifyFailure(ctx context.Context, address, jobName, reason string) error
}
