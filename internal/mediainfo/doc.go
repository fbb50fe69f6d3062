// Package mediainfo reads duration, dimensions, frame rate, audio layout and
// bitrate from a source video using ffprobe.
//
// Missing bitrate metadata is reported as 0 rather than an error. A file
// ffprobe cannot open, or one with no audio or video stream, fails with
// jobs.ErrUnreadableMedia.
package mediainfo
