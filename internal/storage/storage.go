package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"video-pipeline/internal/filesystem"
	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
)

// Subdirectories under {owner}/videos.
const (
	SubdirRaw       = "raw"
	SubdirProcessed = "processed"
)

// Gateway performs path-safe file operations relative to a single root.
// Keys are slash-separated and never absolute.
type Gateway struct {
	root  string
	retry filesystem.RetryConfig

	// remove is os.Remove with NFS retry; replaced in tests.
	remove func(string) error
}

// New returns a Gateway rooted at root, creating it if needed.
func New(root string) (*Gateway, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	g := &Gateway{
		root:  filepath.Clean(abs),
		retry: filesystem.DefaultRetryConfig(),
	}
	g.remove = func(p string) error {
		return filesystem.RemoveWithRetry(p, g.retry)
	}
	return g, nil
}

// Root returns the absolute storage root.
func (g *Gateway) Root() string {
	return g.root
}

// Resolve maps key to an absolute location under the root. It is purely
// lexical and fails with jobs.ErrPathViolation before touching the disk.
func (g *Gateway) Resolve(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", jobs.ErrPathViolation, key)
	}
	if filepath.IsAbs(key) || strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return "", fmt.Errorf("%w: %q is absolute", jobs.ErrPathViolation, key)
	}

	full := filepath.Join(g.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(g.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", jobs.ErrPathViolation, key)
	}
	return full, nil
}

// KeyFor converts an absolute location under the root back to a key.
func (g *Gateway) KeyFor(location string) (string, error) {
	rel, err := filepath.Rel(g.root, filepath.Clean(location))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", jobs.ErrPathViolation, location)
	}
	return filepath.ToSlash(rel), nil
}

// Store writes r to {ownerID}/videos/{subdir}/{logicalName} and returns its key.
// The file is written to a temporary name first and renamed into place.
func (g *Gateway) Store(r io.Reader, logicalName, ownerID, subdir string) (string, error) {
	if logicalName == "" || strings.ContainsAny(logicalName, `/\`) {
		return "", fmt.Errorf("%w: invalid object name %q", jobs.ErrPathViolation, logicalName)
	}
	key := path.Join(VideosKey(ownerID), subdir, logicalName)
	dst, err := g.Resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename into %s: %w", key, err)
	}

	return key, nil
}

// Load opens the object at key for reading.
func (g *Gateway) Load(key string) (io.ReadCloser, error) {
	f, _, err := g.Open(key)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Open opens a regular file at key and returns it with its FileInfo.
func (g *Gateway) Open(key string) (*os.File, os.FileInfo, error) {
	p, err := g.Resolve(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := filesystem.OpenWithRetry(p, g.retry)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", key, os.ErrNotExist)
	}
	return f, info, nil
}

// Stat returns file information for key.
func (g *Gateway) Stat(key string) (os.FileInfo, error) {
	p, err := g.Resolve(key)
	if err != nil {
		return nil, err
	}
	return filesystem.StatWithRetry(p, g.retry)
}

// Exists reports whether key names an existing file or directory.
func (g *Gateway) Exists(key string) bool {
	_, err := g.Stat(key)
	return err == nil
}

// MkdirAll creates the directory at key and returns its absolute location.
func (g *Gateway) MkdirAll(key string) (string, error) {
	p, err := g.Resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}
	return p, nil
}

// Delete removes a single file. It returns false without error when the
// file did not exist.
func (g *Gateway) Delete(key string) (bool, error) {
	p, err := g.Resolve(key)
	if err != nil {
		return false, err
	}
	if err := g.remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Copy duplicates the file at srcKey to dstKey, creating parent directories.
func (g *Gateway) Copy(srcKey, dstKey string) error {
	src, _, err := g.Open(srcKey)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logging.Warn("failed to close %s: %v", srcKey, err)
		}
	}()

	dst, err := g.Resolve(dstKey)
	if err != nil {
		return err
	}
	if dir := path.Dir(dstKey); dir != "." {
		if _, err := g.MkdirAll(dir); err != nil {
			return err
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstKey, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s to %s: %w", srcKey, dstKey, err)
	}
	return out.Close()
}

// VideosKey is the per-owner namespace, {ownerID}/videos.
func VideosKey(ownerID string) string {
	return path.Join(ownerID, "videos")
}

// RawKey is the key of an uploaded source file.
func RawKey(ownerID, objectName string) string {
	return path.Join(VideosKey(ownerID), SubdirRaw, objectName)
}

// ProcessedKey is the directory holding every artifact of one job.
func ProcessedKey(ownerID, jobID string) string {
	return path.Join(VideosKey(ownerID), SubdirProcessed, jobID)
}

// HLSKey is the directory holding the master and rendition playlists of a job.
func HLSKey(ownerID, jobID string) string {
	return path.Join(ProcessedKey(ownerID, jobID), "hls")
}

// RawObjectName returns a collision-free name for an upload, keeping its extension.
func RawObjectName(originalFilename string) string {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(originalFilename)))
	return uuid.NewString() + ext
}
