package mediatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFileType(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want FileType
	}{
		{"HLS playlist", ".m3u8", FileTypePlaylist},
		{"HLS segment", ".ts", FileTypeSegment},
		{"poster", ".jpg", FileTypeImage},
		{"MP4 video", ".mp4", FileTypeVideo},
		{"MKV video", ".mkv", FileTypeVideo},
		{"Unknown extension", ".xyz", FileTypeOther},
		{"Empty extension", "", FileTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetFileType(tt.ext))
		})
	}
}

func TestForName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"master.m3u8", "application/vnd.apple.mpegurl"},
		{"720p_004.ts", "video/mp2t"},
		{"a/b/Movie.MP4", "video/mp4"},
		{"thumbnail.jpg", "image/jpeg"},
		{"notes.txt", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ForName(tt.name), tt.name)
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".mov", Ext("dir.v1/CLIP.MOV"))
	assert.Empty(t, Ext("README"))
}
