// Package transcoder converts an uploaded video into an HLS rendition set
// using FFmpeg.
//
// For a source of W x H only profiles with width <= W and height <= H are
// produced. Each profile is encoded in its own ffmpeg pass with 10 second
// segments, a VOD playlist, a keyframe interval of twice the output frame
// rate and yuv420p pixels. A profile that fails is skipped; when none
// succeed the transcode fails with jobs.ErrTranscodeFailed and no master
// playlist is written.
//
// FFmpeg must be installed, or its path given to New. Tests substitute a
// Runner so no binary is needed.
package transcoder
