// Package thumbnail captures a poster frame for a processed video.
//
// The frame is taken at min(2s, duration/2), scaled to fit 640x360 with
// imaging and stored as a JPEG next to the HLS output. Callers treat any
// error as non-fatal.
package thumbnail
