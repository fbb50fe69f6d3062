package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/mediainfo"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/playlist"
	"video-pipeline/internal/storage"
)

const (
	// SegmentSeconds is the fixed HLS target segment duration.
	SegmentSeconds = 10
	// PixelFormat is used for every profile.
	PixelFormat = "yuv420p"

	MasterPlaylistName = "master.m3u8"

	defaultFrameRate  = 24.0
	defaultSampleRate = 48000
	defaultChannels   = 2
)

// Runner executes an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Inspector reads stream metadata from a source file.
type Inspector interface {
	Inspect(ctx context.Context, path string) (*mediainfo.Info, error)
}

// Result describes the artifacts of a finished transcode. When Transcode
// fails after the source was inspected it still returns a Result carrying
// DurationMillis and Source, with no keys or profiles.
type Result struct {
	MasterKey      string
	BaseKey        string
	DurationMillis int64
	Profiles       []string
	Source         *mediainfo.Info
}

// Engine turns one source file into an HLS rendition set.
type Engine struct {
	ffmpegPath string
	profiles   []Profile
	inspector  Inspector
	store      *storage.Gateway
	runner     Runner

	// shutdown is cancelled by Cleanup and kills running ffmpeg processes.
	shutdown context.Context
	cancel   context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the ffmpeg process runner.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithProfiles replaces DefaultProfiles. profiles must be ordered by height.
func WithProfiles(profiles []Profile) Option {
	return func(e *Engine) { e.profiles = profiles }
}

// New creates an Engine writing into store.
func New(ffmpegPath string, inspector Inspector, store *storage.Gateway, opts ...Option) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ffmpegPath: ffmpegPath,
		profiles:   DefaultProfiles,
		inspector:  inspector,
		store:      store,
		runner:     execRunner{},
		shutdown:   ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profiles returns the configured profile list.
func (e *Engine) Profiles() []Profile {
	return e.profiles
}

// Transcode inspects the source at sourceKey and writes every applicable
// profile plus a master playlist under {ownerID}/videos/processed/{jobID}/hls.
// Profiles are encoded one after another; a failed profile is skipped.
func (e *Engine) Transcode(ctx context.Context, sourceKey, ownerID, jobID string) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.shutdown, cancel)
	defer stop()

	log := logging.ForJob(jobID)

	src, err := e.store.Resolve(sourceKey)
	if err != nil {
		return nil, err
	}

	info, err := e.inspector.Inspect(ctx, src)
	if err != nil {
		return nil, err
	}
	params := normalize(info)
	partial := &Result{DurationMillis: info.DurationMillis, Source: info}

	applicable := Applicable(e.profiles, info.Width, info.Height)
	if len(applicable) == 0 {
		return partial, fmt.Errorf("%w: source is %dx%d", jobs.ErrNoApplicableProfile, info.Width, info.Height)
	}

	baseKey := storage.HLSKey(ownerID, jobID)
	outDir, err := e.store.MkdirAll(baseKey)
	if err != nil {
		return partial, err
	}

	log.Info("transcoding %s (%dx%d, %.3f fps) into %d profile(s)",
		sourceKey, info.Width, info.Height, params.frameRate, len(applicable))

	var variants []playlist.Variant
	var produced []string
	var lastErr error
	for _, p := range applicable {
		start := time.Now()
		err := e.runner.Run(ctx, e.ffmpegPath, buildArgs(src, outDir, p, params)...)
		metrics.ProfileTranscodeDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.ProfileTranscodesTotal.WithLabelValues(p.Name, "error").Inc()
			if ctx.Err() != nil {
				return partial, ctx.Err()
			}
			log.Warn("profile %s failed, skipping: %v", p.Name, err)
			removeProfileOutput(outDir, p.Name)
			lastErr = err
			continue
		}

		metrics.ProfileTranscodesTotal.WithLabelValues(p.Name, "success").Inc()
		log.Info("profile %s done in %v", p.Name, time.Since(start).Round(time.Millisecond))

		variants = append(variants, playlist.Variant{
			Bandwidth: p.Bandwidth(params.hasAudio),
			Width:     p.Width,
			Height:    p.Height,
			Codecs:    p.Codecs(params.hasAudio),
			URI:       p.Name + ".m3u8",
		})
		produced = append(produced, p.Name)
	}

	if len(variants) == 0 {
		return partial, fmt.Errorf("%w: all %d profile(s) failed, last error: %v",
			jobs.ErrTranscodeFailed, len(applicable), lastErr)
	}

	masterKey := path.Join(baseKey, MasterPlaylistName)
	if err := writeMaster(filepath.Join(outDir, MasterPlaylistName), variants); err != nil {
		return partial, fmt.Errorf("write master playlist: %w", err)
	}

	return &Result{
		MasterKey:      masterKey,
		BaseKey:        baseKey,
		DurationMillis: info.DurationMillis,
		Profiles:       produced,
		Source:         info,
	}, nil
}

// Cleanup kills every running ffmpeg process started by this engine.
// Transcode calls in progress return context.Canceled.
func (e *Engine) Cleanup() {
	logging.Info("Stopping active transcodes")
	e.cancel()
}

type encodeParams struct {
	frameRate  float64
	gop        int
	sampleRate int
	channels   int
	hasAudio   bool
}

// normalize fills in defaults for missing or invalid metadata.
func normalize(info *mediainfo.Info) encodeParams {
	p := encodeParams{
		frameRate:  info.FrameRate,
		sampleRate: info.SampleRate,
		channels:   info.Channels,
		hasAudio:   info.AudioCodec != "" || info.SampleRate > 0 || info.Channels > 0,
	}
	if p.frameRate <= 0 || math.IsNaN(p.frameRate) || p.frameRate > 240 {
		p.frameRate = defaultFrameRate
	}
	if p.sampleRate <= 0 {
		p.sampleRate = defaultSampleRate
	}
	if p.channels <= 0 {
		p.channels = defaultChannels
	}
	p.gop = int(math.Round(p.frameRate * 2))
	return p
}

// buildArgs returns the ffmpeg arguments that encode src into one HLS
// rendition named after the profile inside outDir.
func buildArgs(src, outDir string, p Profile, params encodeParams) []string {
	gop := strconv.Itoa(params.gop)
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		p.Width, p.Height, p.Width, p.Height)

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", src,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-vf", scale,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-profile:v", p.CodecProfile,
		"-level:v", p.CodecLevel,
		"-b:v", strconv.FormatInt(p.VideoBitrate, 10),
		"-maxrate", strconv.FormatInt(p.VideoBitrate*107/100, 10),
		"-bufsize", strconv.FormatInt(p.VideoBitrate*3/2, 10),
		"-r", strconv.FormatFloat(params.frameRate, 'f', -1, 64),
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
		"-pix_fmt", PixelFormat,
	}
	if params.hasAudio {
		args = append(args,
			"-c:a", "aac",
			"-b:a", strconv.FormatInt(p.AudioBitrate, 10),
			"-ar", strconv.Itoa(params.sampleRate),
			"-ac", strconv.Itoa(params.channels),
		)
	}
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, p.Name+"_%03d.ts"),
		filepath.Join(outDir, p.Name+".m3u8"),
	)
	return args
}

func writeMaster(dst string, variants []playlist.Variant) error {
	data, err := playlist.Master(variants)
	if err != nil {
		return err
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// removeProfileOutput deletes a failed profile's partial playlist and segments.
func removeProfileOutput(outDir, name string) {
	matches, _ := filepath.Glob(filepath.Join(outDir, name+"_*.ts"))
	matches = append(matches, filepath.Join(outDir, name+".m3u8"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("failed to remove partial output %s: %v", m, err)
		}
	}
}

// execRunner runs commands with exec.CommandContext and keeps a bounded
// tail of stderr for error messages.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Debug("exec %s %s", name, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 2048))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
