package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"path"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"

	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/storage"
)

const (
	FileName = "thumbnail.jpg"

	maxWidth    = 640
	maxHeight   = 360
	jpegQuality = 85
	maxOffset   = 2 * time.Second
)

// FrameFunc extracts one frame at offset from the file at src.
type FrameFunc func(ctx context.Context, src string, offset time.Duration) (image.Image, error)

// Generator captures a poster frame from a source video.
type Generator struct {
	ffmpegPath string
	store      *storage.Gateway
	frame      FrameFunc
}

// New returns a Generator that extracts frames with ffmpeg.
func New(ffmpegPath string, store *storage.Gateway) *Generator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	g := &Generator{ffmpegPath: ffmpegPath, store: store}
	g.frame = g.extractFrame
	return g
}

// NewWithFrameFunc returns a Generator using frame instead of ffmpeg.
func NewWithFrameFunc(store *storage.Gateway, frame FrameFunc) *Generator {
	return &Generator{store: store, frame: frame}
}

// Offset is the capture position: two seconds in, or the midpoint of
// shorter videos. Unknown durations capture the first frame.
func Offset(durationMillis int64) time.Duration {
	if durationMillis <= 0 {
		return 0
	}
	half := time.Duration(durationMillis) * time.Millisecond / 2
	if half < maxOffset {
		return half
	}
	return maxOffset
}

// Capture writes {ownerID}/videos/processed/{jobID}/thumbnail.jpg and returns its key.
func (g *Generator) Capture(ctx context.Context, sourceKey, ownerID, jobID string, durationMillis int64) (string, error) {
	src, err := g.store.Resolve(sourceKey)
	if err != nil {
		return "", err
	}

	img, err := g.frame(ctx, src, Offset(durationMillis))
	if err != nil {
		metrics.ThumbnailsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("extract frame: %w", err)
	}
	if img == nil {
		metrics.ThumbnailsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("extract frame: no image")
	}

	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		metrics.ThumbnailsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key, err := g.store.Store(&buf, FileName, ownerID, path.Join(storage.SubdirProcessed, jobID))
	if err != nil {
		metrics.ThumbnailsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.ThumbnailsTotal.WithLabelValues("success").Inc()
	logging.Debug("job %s: thumbnail written to %s (%dx%d)", jobID, key, thumb.Bounds().Dx(), thumb.Bounds().Dy())
	return key, nil
}

// extractFrame pipes a single BMP frame out of ffmpeg. If seeking fails the
// first frame is used instead.
func (g *Generator) extractFrame(ctx context.Context, src string, offset time.Duration) (image.Image, error) {
	run := func(seek bool) ([]byte, error) {
		args := []string{"-hide_banner", "-nostdin"}
		if seek {
			args = append(args, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64))
		}
		args = append(args, "-i", src, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "bmp", "-")

		cmd := exec.CommandContext(ctx, g.ffmpegPath, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
		}
		return stdout.Bytes(), nil
	}

	out, err := run(offset > 0)
	if (err != nil || len(out) == 0) && offset > 0 {
		logging.Debug("Frame at %v failed for %s, retrying at start: %v", offset, src, err)
		out, err = run(false)
	}
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", src)
	}

	img, err := bmp.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}
