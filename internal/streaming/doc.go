/*
Package streaming copies response bodies with per-chunk write deadlines.

Seeking players open many short range requests and abandon them freely, and
a slow client must not pin a file handle forever. Copy renews the write
deadline for every chunk through http.ResponseController, stops as soon as
the request context is cancelled, and counts the bytes it wrote in the
video_pipeline_bytes_served_total metric.

	n, err := streaming.Copy(r.Context(), w, file, length, "direct", streaming.DefaultConfig())
	if !streaming.Expected(err) {
		logging.Warn("stream aborted after %d bytes: %v", n, err)
	}

Callers set Content-Length before copying; the body is never sent chunked.
*/
package streaming
