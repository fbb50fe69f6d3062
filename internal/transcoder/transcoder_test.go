package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/mediainfo"
	"video-pipeline/internal/playlist"
	"video-pipeline/internal/storage"
)

type fakeInspector struct {
	info *mediainfo.Info
	err  error
}

func (f fakeInspector) Inspect(context.Context, string) (*mediainfo.Info, error) {
	return f.info, f.err
}

// fakeRunner pretends to be ffmpeg: it writes the output playlist and one
// segment, or fails for the profiles listed in fail.
type fakeRunner struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls [][]string
	block chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, _ string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	out := args[len(args)-1]
	name := strings.TrimSuffix(filepath.Base(out), ".m3u8")
	seg := filepath.Join(filepath.Dir(out), name+"_000.ts")
	if err := os.WriteFile(seg, []byte("ts"), 0o644); err != nil {
		return err
	}
	if r.fail[name] {
		return errors.New("exit status 1: encoder error")
	}
	return os.WriteFile(out, []byte("#EXTM3U\n#EXTINF:10,\n"+name+"_000.ts\n#EXT-X-ENDLIST\n"), 0o644)
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func setup(t *testing.T, info *mediainfo.Info, runner *fakeRunner) (*Engine, *storage.Gateway) {
	t.Helper()
	g, err := storage.New(t.TempDir())
	require.NoError(t, err)
	_, err = g.Store(strings.NewReader("src"), "src.mp4", "u1", storage.SubdirRaw)
	require.NoError(t, err)

	e := New("ffmpeg", fakeInspector{info: info}, g, WithRunner(runner))
	return e, g
}

func source480() *mediainfo.Info {
	return &mediainfo.Info{
		DurationMillis: 30000, Width: 854, Height: 480, FrameRate: 30,
		SampleRate: 44100, Channels: 2, VideoCodec: "h264", AudioCodec: "aac",
	}
}

func TestApplicableNeverUpscales(t *testing.T) {
	got := ProfileNames(Applicable(DefaultProfiles, 854, 480))
	assert.Equal(t, []string{"240p", "360p", "480p"}, got)

	assert.Empty(t, Applicable(DefaultProfiles, 320, 200))
	assert.Len(t, Applicable(DefaultProfiles, 3840, 2160), len(DefaultProfiles))

	// 4:3 source: 480p is too wide even though the height fits.
	assert.Equal(t, []string{"240p", "360p"}, ProfileNames(Applicable(DefaultProfiles, 640, 480)))
}

func TestDefaultProfilesAscending(t *testing.T) {
	for i := 1; i < len(DefaultProfiles); i++ {
		assert.Greater(t, DefaultProfiles[i].Height, DefaultProfiles[i-1].Height)
	}
}

func TestProfileCodecs(t *testing.T) {
	assert.Equal(t, "avc1.42e01e,mp4a.40.2", DefaultProfiles[0].Codecs(true))
	assert.Equal(t, "avc1.4d401f", DefaultProfiles[3].Codecs(false))
	assert.Equal(t, "avc1.640028,mp4a.40.2", DefaultProfiles[4].Codecs(true))
	assert.Equal(t, int64(896_000), DefaultProfiles[1].Bandwidth(true))
}

func TestNormalizeDefaults(t *testing.T) {
	p := normalize(&mediainfo.Info{Width: 640, Height: 360, AudioCodec: "aac"})
	assert.Equal(t, 24.0, p.frameRate)
	assert.Equal(t, 48, p.gop)
	assert.Equal(t, 48000, p.sampleRate)
	assert.Equal(t, 2, p.channels)
	assert.True(t, p.hasAudio)

	p = normalize(&mediainfo.Info{FrameRate: 29.97})
	assert.Equal(t, 60, p.gop)
	assert.False(t, p.hasAudio)
}

func TestBuildArgs(t *testing.T) {
	params := normalize(source480())
	args := buildArgs("/in.mp4", "/out", DefaultProfiles[1], params)

	assert.Equal(t, "10", argValue(args, "-hls_time"))
	assert.Equal(t, "vod", argValue(args, "-hls_playlist_type"))
	assert.Equal(t, "60", argValue(args, "-g"))
	assert.Equal(t, "yuv420p", argValue(args, "-pix_fmt"))
	assert.Equal(t, "main", argValue(args, "-profile:v"))
	assert.Equal(t, "800000", argValue(args, "-b:v"))
	assert.Equal(t, "44100", argValue(args, "-ar"))
	assert.Equal(t, "/out/360p_%03d.ts", argValue(args, "-hls_segment_filename"))
	assert.Equal(t, "/out/360p.m3u8", args[len(args)-1])
	assert.Contains(t, argValue(args, "-vf"), "scale=640:360")

	silent := normalize(&mediainfo.Info{Width: 854, Height: 480})
	assert.NotContains(t, buildArgs("/in.mp4", "/out", DefaultProfiles[0], silent), "-c:a")
}

func TestTranscodeProducesMasterPlaylist(t *testing.T) {
	runner := &fakeRunner{}
	e, g := setup(t, source480(), runner)

	res, err := e.Transcode(context.Background(), "u1/videos/raw/src.mp4", "u1", "42")
	require.NoError(t, err)

	assert.Equal(t, "u1/videos/processed/42/hls/master.m3u8", res.MasterKey)
	assert.Equal(t, "u1/videos/processed/42/hls", res.BaseKey)
	assert.Equal(t, int64(30000), res.DurationMillis)
	assert.Equal(t, []string{"240p", "360p", "480p"}, res.Profiles)
	assert.Len(t, runner.calls, 3, "profiles are encoded sequentially, one pass each")

	rc, err := g.Load(res.MasterKey)
	require.NoError(t, err)
	defer rc.Close()
	variants, err := playlist.ParseMaster(rc)
	require.NoError(t, err)
	require.Len(t, variants, 3)
	assert.Equal(t, "240p.m3u8", variants[0].URI)
	assert.Equal(t, "480p.m3u8", variants[2].URI)
	assert.Equal(t, 854, variants[2].Width)
	assert.Equal(t, int64(1_528_000), variants[2].Bandwidth)
}

func TestTranscodeSkipsFailedProfile(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"360p": true}}
	e, g := setup(t, source480(), runner)

	res, err := e.Transcode(context.Background(), "u1/videos/raw/src.mp4", "u1", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"240p", "480p"}, res.Profiles)

	rc, err := g.Load(res.MasterKey)
	require.NoError(t, err)
	defer rc.Close()
	variants, err := playlist.ParseMaster(rc)
	require.NoError(t, err)
	assert.Len(t, variants, 2)

	assert.False(t, g.Exists("u1/videos/processed/1/hls/360p_000.ts"), "partial segments removed")
}

func TestTranscodeAllProfilesFail(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"240p": true, "360p": true, "480p": true}}
	e, g := setup(t, source480(), runner)

	res, err := e.Transcode(context.Background(), "u1/videos/raw/src.mp4", "u1", "1")
	assert.ErrorIs(t, err, jobs.ErrTranscodeFailed)
	assert.False(t, g.Exists("u1/videos/processed/1/hls/master.m3u8"))

	require.NotNil(t, res, "inspected metadata survives the failure")
	assert.Equal(t, int64(30000), res.DurationMillis)
	assert.Empty(t, res.MasterKey)
	assert.Empty(t, res.Profiles)
}

func TestTranscodeNoApplicableProfile(t *testing.T) {
	runner := &fakeRunner{}
	e, _ := setup(t, &mediainfo.Info{Width: 320, Height: 180, DurationMillis: 30000}, runner)

	res, err := e.Transcode(context.Background(), "u1/videos/raw/src.mp4", "u1", "1")
	assert.ErrorIs(t, err, jobs.ErrNoApplicableProfile)
	assert.Empty(t, runner.calls)
	require.NotNil(t, res)
	assert.Equal(t, int64(30000), res.DurationMillis)
}

func TestTranscodeUnreadableSource(t *testing.T) {
	g, err := storage.New(t.TempDir())
	require.NoError(t, err)
	e := New("ffmpeg", fakeInspector{err: jobs.ErrUnreadableMedia}, g, WithRunner(&fakeRunner{}))

	res, err := e.Transcode(context.Background(), "u1/videos/raw/src.mp4", "u1", "1")
	assert.ErrorIs(t, err, jobs.ErrUnreadableMedia)
	assert.Nil(t, res, "nothing is known before inspection")

	_, err = e.Transcode(context.Background(), "../../etc/passwd", "u1", "1")
	assert.ErrorIs(t, err, jobs.ErrPathViolation)
}

func TestCleanupCancelsRunningTranscode(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	e, _ := setup(t, source480(), runner)

	done := make(chan error, 1)
	go func() {
		_, err := e.Transcode(context.Background(), "u1/videos/raw/src.mp4", "u1", "1")
		done <- err
	}()

	for {
		runner.mu.Lock()
		n := len(runner.calls)
		runner.mu.Unlock()
		if n > 0 {
			break
		}
	}
	e.Cleanup()

	assert.ErrorIs(t, <-done, context.Canceled)
}
