package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrPathViolation means a key resolved outside the storage root.
	ErrPathViolation = errors.New("path escapes storage root")
	// ErrUnreadableMedia means the source could not be opened or has no decodable stream.
	ErrUnreadableMedia = errors.New("unreadable media")
	// ErrNoApplicableProfile means every profile would upscale the source.
	ErrNoApplicableProfile = errors.New("no applicable resolution profile")
	// ErrTranscodeFailed means no profile produced output.
	ErrTranscodeFailed = errors.New("transcode failed")
	ErrJobNotFound     = errors.New("job not found")
	ErrQueueFull       = errors.New("worker queue is full")
	ErrInvalidToken    = errors.New("invalid stream token")
	ErrTokenExpired    = errors.New("stream token expired")
)

// Kind separates errors that fail a job from those that are only logged.
type Kind string

const (
	KindFatal   Kind = "fatal"
	KindCleanup Kind = "cleanup"
)

// PipelineError wraps an error with the pipeline step and job it came from.
type PipelineError struct {
	Kind  Kind
	Op    string
	JobID string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s job %s: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &PipelineError{Kind: KindCleanup}).
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Op == "" && t.JobID == "" && t.Err == nil && t.Kind == e.Kind
}

// Fatal wraps err as a job-failing error for op.
func Fatal(op, jobID string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Kind: KindFatal, Op: op, JobID: jobID, Err: err}
}

// Cleanup wraps err as a post-commit error that must not change job status.
func Cleanup(op, jobID string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Kind: KindCleanup, Op: op, JobID: jobID, Err: err}
}

// IsCleanup reports whether err is a logged-only cleanup error.
func IsCleanup(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == KindCleanup
}
