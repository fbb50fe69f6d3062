package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"video-pipeline/internal/filesystem"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/metrics"
)

// PathFailure is one path DeleteTree could not remove.
type PathFailure struct {
	Path string
	Err  error
}

// TreeDeleteResult aggregates the outcome of DeleteTree.
type TreeDeleteResult struct {
	Key      string
	Deleted  int
	Failures []PathFailure
}

// OK reports whether every path under the tree was removed.
func (r *TreeDeleteResult) OK() bool {
	return len(r.Failures) == 0
}

// Err joins all per-path failures, or returns nil.
func (r *TreeDeleteResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}

func (r *TreeDeleteResult) fail(p string, err error) {
	r.Failures = append(r.Failures, PathFailure{Path: p, Err: err})
	metrics.TreeDeleteFailures.Inc()
}

// DeleteTree removes key and everything beneath it, children before parents.
// A path that cannot be removed is recorded and the walk continues, so the
// returned error is non-nil only for a rejected key. A missing tree is not
// a failure.
func (g *Gateway) DeleteTree(key string) (*TreeDeleteResult, error) {
	p, err := g.Resolve(key)
	if err != nil {
		return nil, err
	}

	res := &TreeDeleteResult{Key: key}
	g.removeTree(p, res)

	if !res.OK() {
		logging.Warn("delete tree %s: %d path(s) left behind: %v", key, len(res.Failures), res.Err())
	}
	return res, nil
}

func (g *Gateway) removeTree(p string, res *TreeDeleteResult) {
	info, err := os.Lstat(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			res.fail(p, err)
		}
		return
	}

	if info.IsDir() {
		entries, err := filesystem.ReadDirWithRetry(p, g.retry)
		if err != nil {
			res.fail(p, err)
		}
		for _, e := range entries {
			g.removeTree(filepath.Join(p, e.Name()), res)
		}
	}

	if err := g.remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		res.fail(p, err)
		return
	}
	res.Deleted++
}

// PurgeJob removes every artifact of a job and its raw upload. It is used
// when a video record is deleted; the job store record is not touched.
func (g *Gateway) PurgeJob(ownerID, jobID, rawKey string) (*TreeDeleteResult, error) {
	res, err := g.DeleteTree(ProcessedKey(ownerID, jobID))
	if err != nil {
		return nil, err
	}
	if rawKey != "" {
		deleted, err := g.Delete(rawKey)
		switch {
		case err != nil:
			res.fail(rawKey, err)
		case deleted:
			res.Deleted++
		}
	}
	return res, nil
}
