// Package handlers provides the HTTP delivery surface of the video pipeline.
//
// It includes handlers for:
//   - Direct, range-capable serving of a job's artifacts to its owner
//   - Token-gated HLS playlists and segments, with playlists rewritten so
//     nested references carry the token
//   - Minting signed HLS stream URLs
//   - Health checks, version information and Prometheus metrics
//
// Jobs that are still UPLOADED or PROCESSING answer 423 Locked. Missing
// artifacts, failed jobs and sub-paths that leave the job's HLS directory all
// answer 404 so internal layout is never disclosed.
package handlers
