package mediainfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

// Info describes the streams of a source file. Zero values mean the
// property was not reported.
type Info struct {
	DurationMillis int64   `json:"durationMillis"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FrameRate      float64 `json:"frameRate"`
	SampleRate     int     `json:"sampleRate"`
	Channels       int     `json:"channels"`
	VideoCodec     string  `json:"videoCodec"`
	AudioCodec     string  `json:"audioCodec"`
	Bitrate        int64   `json:"bitrate"`
}

// HasVideo reports whether a video stream with dimensions was found.
func (i *Info) HasVideo() bool {
	return i.Width > 0 && i.Height > 0
}

// RunFunc executes a command and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Inspector extracts stream metadata with ffprobe.
type Inspector struct {
	ffprobePath string
	run         RunFunc
}

// New returns an Inspector using the given ffprobe binary ("ffprobe" if empty).
func New(ffprobePath string) *Inspector {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Inspector{ffprobePath: ffprobePath, run: execRun}
}

// NewWithRunner returns an Inspector that runs commands through run.
func NewWithRunner(ffprobePath string, run RunFunc) *Inspector {
	i := New(ffprobePath)
	i.run = run
	return i
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w - %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Inspect reads the stream metadata of path. It fails with
// jobs.ErrUnreadableMedia when ffprobe cannot open the file or finds no
// decodable stream.
func (i *Inspector) Inspect(ctx context.Context, path string) (*Info, error) {
	start := time.Now()
	defer func() {
		metrics.InspectDuration.Observe(time.Since(start).Seconds())
	}()

	out, err := i.run(ctx, i.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", jobs.ErrUnreadableMedia, err)
	}

	info, err := Parse(out)
	if err != nil {
		return nil, err
	}
	logging.Debug("inspected %s: %dx%d %.3ffps %s/%s %dms", path,
		info.Width, info.Height, info.FrameRate, info.VideoCodec, info.AudioCodec, info.DurationMillis)
	return info, nil
}

type streamReport struct {
	Streams []reportStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type reportStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	BitRate      string `json:"bit_rate"`
	Duration     string `json:"duration"`
}

// Parse converts ffprobe JSON output into Info.
func Parse(data []byte) (*Info, error) {
	var report streamReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", jobs.ErrUnreadableMedia, err)
	}

	info := &Info{}
	var video, audio *reportStream
	for idx := range report.Streams {
		s := &report.Streams[idx]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil && audio == nil {
		return nil, fmt.Errorf("%w: no audio or video stream", jobs.ErrUnreadableMedia)
	}

	if video != nil {
		info.VideoCodec = video.CodecName
		info.Width = video.Width
		info.Height = video.Height
		info.FrameRate = parseRate(video.AvgFrameRate)
		if info.FrameRate == 0 {
			info.FrameRate = parseRate(video.RFrameRate)
		}
		info.Bitrate += parseInt(video.BitRate)
	}
	if audio != nil {
		info.AudioCodec = audio.CodecName
		info.SampleRate = int(parseInt(audio.SampleRate))
		info.Channels = audio.Channels
		info.Bitrate += parseInt(audio.BitRate)
	}

	duration := parseSeconds(report.Format.Duration)
	if duration == 0 && video != nil {
		duration = parseSeconds(video.Duration)
	}
	info.DurationMillis = duration

	return info, nil
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n <= 0 {
		return 0
	}
	return n / d
}

// parseInt returns 0 for missing or negative values.
func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseSeconds(s string) int64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(v * 1000))
}
