// Package jobs defines the video processing record shared by the dispatcher,
// the job stores and the delivery handlers.
//
// A job moves through UPLOADED, PROCESSING and then READY or FAILED. Only the
// dispatcher changes a job's status; READY and FAILED are terminal for it.
//
// The package also carries the error taxonomy of the pipeline. Errors wrapped
// with Fatal fail the job, errors wrapped with Cleanup are logged and leave
// the committed outcome untouched.
package jobs
