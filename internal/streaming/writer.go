package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a chunk could not be written before its
	// deadline, usually because the client reads too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the body
	// was complete.
	ErrClientGone = errors.New("client disconnected")
)

// Config bounds how long a response body may stall.
type Config struct {
	// WriteTimeout is the deadline for writing one chunk.
	WriteTimeout time.Duration
	// ChunkSize is the copy buffer size; the deadline is renewed per chunk.
	ChunkSize int
}

// DefaultConfig returns the settings used by the delivery handlers.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// Copy writes up to n bytes from r to w, or everything when n < 0. Each
// chunk gets a fresh write deadline, so a stalled client is dropped without
// limiting the total transfer time. Bytes written are counted under kind.
func Copy(ctx context.Context, w http.ResponseWriter, r io.Reader, n int64, kind string, cfg Config) (int64, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if n >= 0 {
		r = io.LimitReader(r, n)
	}

	rc := http.NewResponseController(w)
	buf := make([]byte, cfg.ChunkSize)
	start := time.Now()

	var written int64
	defer func() {
		metrics.BytesServed.WithLabelValues(kind).Add(float64(written))
		logging.Debug("Streamed %d %s bytes in %v", written, kind, time.Since(start))
	}()

	for {
		if ctx.Err() != nil {
			return written, ErrClientGone
		}

		nr, readErr := r.Read(buf)
		if nr > 0 {
			if cfg.WriteTimeout > 0 {
				// Not every ResponseWriter supports deadlines; plain copying is
				// the fallback.
				_ = rc.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			}
			nw, err := w.Write(buf[:nr])
			written += int64(nw)
			if err != nil {
				return written, classify(ctx, err)
			}
			if nw < nr {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrWriteTimeout
	case ctx.Err() != nil:
		return ErrClientGone
	default:
		return err
	}
}

// Expected reports whether err is a normal end of a client stream that does
// not warrant an error log.
func Expected(err error) bool {
	return err == nil || errors.Is(err, ErrClientGone) || errors.Is(err, context.Canceled)
}
