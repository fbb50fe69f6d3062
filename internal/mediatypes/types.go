package mediatypes

import (
	"path"
	"strings"
)

// FileType classifies a served artifact.
type FileType string

const (
	// FileTypeVideo is a progressive video file, typically the original upload.
	FileTypeVideo FileType = "video"
	// FileTypePlaylist is an HLS master or media playlist.
	FileTypePlaylist FileType = "playlist"
	// FileTypeSegment is an HLS media segment.
	FileTypeSegment FileType = "segment"
	// FileTypeImage is a poster frame.
	FileTypeImage FileType = "image"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// VideoExtensions lists upload formats accepted as transcode sources.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",

	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
}

// Ext returns the lowercase extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".ts").
func GetFileType(ext string) FileType {
	switch {
	case ext == ".m3u8":
		return FileTypePlaylist
	case ext == ".ts":
		return FileTypeSegment
	case ext == ".jpg" || ext == ".jpeg":
		return FileTypeImage
	case VideoExtensions[ext]:
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ForName is GetMimeType of the extension of name.
func ForName(name string) string {
	return GetMimeType(Ext(name))
}
