package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/mediatypes"
	"video-pipeline/internal/middleware"
	"video-pipeline/internal/playlist"
	"video-pipeline/internal/streaming"

	"github.com/gorilla/mux"
)

const (
	cacheRange    = "max-age=600, no-transform, must-revalidate"
	cacheSegment  = "private, max-age=600"
	cachePlaylist = "no-cache"
)

var errBadSubPath = errors.New("sub-path leaves the job's artifact directory")

// StreamURLResponse is returned by HLSStreamURL.
type StreamURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StreamDirect serves the master playlist of an owned job, or the artifact
// named by the file query parameter, honoring a single Range.
func (h *Handlers) StreamDirect(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	if !h.requirePlayable(w, job) {
		return
	}

	key := job.Artifact(jobs.ArtifactHLSMaster)
	if file := r.URL.Query().Get("file"); file != "" {
		var err error
		if key, err = subKey(job.Artifact(jobs.ArtifactHLSBase), file); err != nil {
			logging.Debug("Direct stream for job %s rejected file %q: %v", job.ID, file, err)
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
	}

	h.serveFile(w, r, key, "direct", "")
}

// StreamHLS serves playlists and segments of a READY job to holders of a
// stream token. Playlists are rewritten so every reference carries the token.
func (h *Handlers) StreamHLS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]
	raw := r.URL.Query().Get("token")

	claims, err := h.tokens.Validate(raw, jobID)
	if err != nil {
		logging.Debug("Stream token rejected for job %s: %v", jobID, err)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	job, ok := h.loadJob(w, r, jobID)
	if !ok {
		return
	}
	if claims.Subject != job.OwnerID {
		logging.Debug("Stream token subject %s does not own job %s", claims.Subject, job.ID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if !h.requirePlayable(w, job) {
		return
	}

	key, err := subKey(job.Artifact(jobs.ArtifactHLSBase), vars["path"])
	if err != nil {
		logging.Debug("HLS request for job %s rejected path %q: %v", job.ID, vars["path"], err)
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch mediatypes.GetFileType(mediatypes.Ext(key)) {
	case mediatypes.FileTypePlaylist:
		h.servePlaylist(w, r, key, raw)
	case mediatypes.FileTypeSegment:
		h.serveFile(w, r, key, "segment", cacheSegment)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// HLSStreamURL mints a stream token for the caller's READY job and returns
// the master playlist URL carrying it.
func (h *Handlers) HLSStreamURL(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	if !h.requirePlayable(w, job) {
		return
	}

	master := job.Artifact(jobs.ArtifactHLSMaster)
	rel, err := relativeTo(job.Artifact(jobs.ArtifactHLSBase), master)
	if err != nil {
		logging.Error("Job %s has master %s outside its HLS directory", job.ID, master)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	tok, expires, err := h.tokens.Mint(job.ID, job.OwnerID)
	if err != nil {
		logging.Error("Failed to mint stream token for job %s: %v", job.ID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	u, err := url.Parse(h.baseURL(r))
	if err != nil {
		logging.Error("Invalid public base URL %q: %v", h.publicBaseURL, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	u.Path = path.Join("/", u.Path, "videos", job.ID, "stream", rel)
	u.RawQuery = url.Values{"token": {tok}}.Encode()

	w.Header().Set("Cache-Control", "no-store")
	writeJSONStatusCode(w, http.StatusOK, StreamURLResponse{URL: u.String(), ExpiresAt: expires.UTC()})
}

// ownedJob loads the job named in the route and checks it belongs to the
// authenticated caller.
func (h *Handlers) ownedJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	subject, ok := middleware.Subject(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	job, ok := h.loadJob(w, r, mux.Vars(r)["id"])
	if !ok {
		return nil, false
	}
	if job.OwnerID != subject {
		logging.Debug("User %s denied access to job %s", subject, job.ID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return job, true
}

func (h *Handlers) loadJob(w http.ResponseWriter, r *http.Request, id string) (*jobs.Job, bool) {
	job, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			http.Error(w, "Video not found", http.StatusNotFound)
		} else {
			logging.Error("Failed to load job %s: %v", id, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return nil, false
	}
	return job, true
}

// requirePlayable answers 423 while a job is pending and 404 once it has
// failed.
func (h *Handlers) requirePlayable(w http.ResponseWriter, job *jobs.Job) bool {
	switch {
	case job.Playable():
		return true
	case job.Status == jobs.StatusUploaded || job.Status == jobs.StatusProcessing:
		http.Error(w, "Video is still processing", http.StatusLocked)
	default:
		http.Error(w, "Video not found", http.StatusNotFound)
	}
	return false
}

// serveFile writes the object at key, honoring the first range of a Range
// header. A malformed header is ignored and the whole body is sent.
func (h *Handlers) serveFile(w http.ResponseWriter, r *http.Request, key, kind, cacheControl string) {
	f, info, err := h.files.Open(key)
	if err != nil {
		if errors.Is(err, jobs.ErrPathViolation) {
			logging.Warn("Blocked artifact request outside storage root: %s", key)
		} else {
			logging.Debug("Artifact %s unavailable: %v", key, err)
		}
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	size := info.Size()
	header := w.Header()
	header.Set("Content-Type", mediatypes.ForName(key))
	header.Set("Accept-Ranges", "bytes")

	length := size
	status := http.StatusOK
	if rh := r.Header.Get("Range"); rh != "" {
		br, err := parseRange(rh, size)
		switch {
		case errors.Is(err, errUnsatisfiableRange):
			header.Set("Content-Range", "bytes */"+itoa(size))
			http.Error(w, "Requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		case err != nil:
			logging.Debug("Ignoring Range %q for %s: %v", rh, key, err)
		default:
			if _, err := f.Seek(br.start, io.SeekStart); err != nil {
				logging.Error("Failed to seek %s to %d: %v", key, br.start, err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			length = br.length()
			status = http.StatusPartialContent
			header.Set("Content-Range", br.contentRange(size))
			cacheControl = cacheRange
		}
	}

	if cacheControl != "" {
		header.Set("Cache-Control", cacheControl)
	}
	header.Set("Content-Length", itoa(length))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if n, err := streaming.Copy(r.Context(), w, f, length, kind, h.stream); !streaming.Expected(err) {
		logging.Warn("Stream of %s aborted after %d of %d bytes: %v", key, n, length, err)
	}
}

func (h *Handlers) servePlaylist(w http.ResponseWriter, r *http.Request, key, tok string) {
	src, err := h.files.Load(key)
	if err != nil {
		logging.Debug("Playlist %s unavailable: %v", key, err)
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer src.Close()

	var buf bytes.Buffer
	if err := playlist.RewriteWithToken(src, &buf, tok); err != nil {
		logging.Error("Failed to rewrite playlist %s: %v", key, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", mediatypes.ForName(key))
	header.Set("Cache-Control", cachePlaylist)
	header.Set("Content-Length", itoa(int64(buf.Len())))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if n, err := streaming.Copy(r.Context(), w, &buf, -1, "playlist", h.stream); !streaming.Expected(err) {
		logging.Warn("Playlist %s aborted after %d bytes: %v", key, n, err)
	}
}

func (h *Handlers) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// subKey joins a client-supplied relative path onto base. Absolute paths
// and any path that climbs out of base are rejected.
func subKey(base, rel string) (string, error) {
	if base == "" {
		return "", errBadSubPath
	}
	rel = strings.TrimSpace(rel)
	if rel == "" || path.IsAbs(rel) || strings.ContainsAny(rel, "\\\x00") {
		return "", errBadSubPath
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errBadSubPath
	}
	return path.Join(base, clean), nil
}

func relativeTo(base, key string) (string, error) {
	rel, ok := strings.CutPrefix(key, base+"/")
	if base == "" || !ok || rel == "" {
		return "", errBadSubPath
	}
	return rel, nil
}
