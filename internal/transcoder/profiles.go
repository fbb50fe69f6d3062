package transcoder

import (
	"fmt"
	"strconv"
)

// Profile is one rendition of the adaptive stream.
type Profile struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate int64 // bits per second
	AudioBitrate int64 // bits per second
	CodecProfile string
	CodecLevel   string
}

// DefaultProfiles is ordered ascending by height.
var DefaultProfiles = []Profile{
	{Name: "240p", Width: 426, Height: 240, VideoBitrate: 400_000, AudioBitrate: 64_000, CodecProfile: "baseline", CodecLevel: "3.0"},
	{Name: "360p", Width: 640, Height: 360, VideoBitrate: 800_000, AudioBitrate: 96_000, CodecProfile: "main", CodecLevel: "3.0"},
	{Name: "480p", Width: 854, Height: 480, VideoBitrate: 1_400_000, AudioBitrate: 128_000, CodecProfile: "main", CodecLevel: "3.1"},
	{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2_800_000, AudioBitrate: 128_000, CodecProfile: "main", CodecLevel: "3.1"},
	{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: 5_000_000, AudioBitrate: 192_000, CodecProfile: "high", CodecLevel: "4.0"},
}

// ProfileNames returns the names of profiles in order.
func ProfileNames(profiles []Profile) []string {
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return names
}

// Bandwidth is the declared peak bitrate of the rendition.
func (p Profile) Bandwidth(withAudio bool) int64 {
	if withAudio {
		return p.VideoBitrate + p.AudioBitrate
	}
	return p.VideoBitrate
}

// avcProfileIDC maps x264 profile names to profile_idc and constraint flags.
var avcProfileIDC = map[string]string{
	"baseline": "42e0",
	"main":     "4d40",
	"high":     "6400",
}

// Codecs returns the RFC 6381 codec string, e.g. "avc1.4d401f,mp4a.40.2".
func (p Profile) Codecs(withAudio bool) string {
	idc, ok := avcProfileIDC[p.CodecProfile]
	if !ok {
		idc = avcProfileIDC["main"]
	}
	level, err := strconv.ParseFloat(p.CodecLevel, 64)
	if err != nil || level <= 0 {
		level = 3.1
	}
	video := fmt.Sprintf("avc1.%s%02x", idc, int(level*10+0.5))
	if !withAudio {
		return video
	}
	return video + ",mp4a.40.2"
}

// Applicable returns the profiles that fit inside the source frame, keeping
// their order. A profile is never upscaled.
func Applicable(profiles []Profile, sourceWidth, sourceHeight int) []Profile {
	var out []Profile
	for _, p := range profiles {
		if p.Width <= sourceWidth && p.Height <= sourceHeight {
			out = append(out, p)
		}
	}
	return out
}
