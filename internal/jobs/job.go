package jobs

import (
	"maps"
	"time"
)

type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

// Artifact names recorded in Job.ResolutionArtifacts.
const (
	ArtifactHLSMaster = "hls_master"
	ArtifactHLSBase   = "hls_base"
)

// Terminal reports whether the dispatcher may no longer move a job out of s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job in status s may move to next.
// The only allowed path is UPLOADED -> PROCESSING -> READY|FAILED.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	default:
		return false
	}
}

// Job is the processing record of one uploaded video.
type Job struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title"`
	Status              Status            `json:"status"`
	OwnerID             string            `json:"ownerId"`
	OriginalPath        string            `json:"originalPath"`
	ContentType         string            `json:"contentType,omitempty"`
	FileSizeBytes       int64             `json:"fileSizeBytes"`
	DurationMillis      int64             `json:"durationMillis"`
	ResolutionArtifacts map[string]string `json:"resolutionArtifacts,omitempty"`
	ThumbnailKey        string            `json:"thumbnailKey,omitempty"`
	NotifyAddress       string            `json:"notifyAddress,omitempty"`
	FailureReason       string            `json:"failureReason,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so stores never share the artifact map with callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.ResolutionArtifacts != nil {
		c.ResolutionArtifacts = maps.Clone(j.ResolutionArtifacts)
	}
	return &c
}

// Artifact returns the storage key recorded under name, or "" when absent.
func (j *Job) Artifact(name string) string {
	if j.ResolutionArtifacts == nil {
		return ""
	}
	return j.ResolutionArtifacts[name]
}

// Playable reports whether the job's processed artifacts may be served.
func (j *Job) Playable() bool {
	return j.Status == StatusReady && j.Artifact(ArtifactHLSMaster) != ""
}

// Event is the inbound processing request published once per upload.
// It may be delivered more than once.
type Event struct {
	JobID         string `json:"jobId"`
	OriginalPath  string `json:"originalPath"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	OwnerID       string `json:"ownerId"`
	NotifyAddress string `json:"notifyAddress"`
}

// EventFor builds the processing request for an existing job. An empty
// notifyAddress falls back to the address stored on the job.
func EventFor(job *Job, notifyAddress string) Event {
	if notifyAddress == "" {
		notifyAddress = job.NotifyAddress
	}
	return Event{
		JobID:         job.ID,
		OriginalPath:  job.OriginalPath,
		FileSizeBytes: job.FileSizeBytes,
		OwnerID:       job.OwnerID,
		NotifyAddress: notifyAddress,
	}
}
