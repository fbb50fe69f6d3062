package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/middleware"
	"video-pipeline/internal/storage"
	"video-pipeline/internal/token"
)

var (
	authSecret   = []byte("test-auth-secret")
	streamSecret = []byte("test-stream-secret")
)

const (
	masterBody = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-STREAM-INF:BANDWIDTH=2928000,RESOLUTION=1280x720\n720p.m3u8\n"
	mediaBody  = "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10.000000,\n720p_000.ts\n#EXT-X-ENDLIST\n"
)

type testEnv struct {
	h       *Handlers
	router  *mux.Router
	store   *jobs.MemoryStore
	issuer  *token.Issuer
	segment []byte
}

func readyJob(id, owner string) *jobs.Job {
	hls := storage.HLSKey(owner, id)
	return &jobs.Job{
		ID:      id,
		Title:   "clip.mp4",
		Status:  jobs.StatusReady,
		OwnerID: owner,
		ResolutionArtifacts: map[string]string{
			jobs.ArtifactHLSMaster: hls + "/master.m3u8",
			jobs.ArtifactHLSBase:   hls,
		},
	}
}

func writeArtifact(t *testing.T, root, key string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	root := t.TempDir()
	files, err := storage.New(root)
	require.NoError(t, err)

	segment := make([]byte, 1000)
	for i := range segment {
		segment[i] = byte(i % 251)
	}
	hls := storage.HLSKey("u1", "j1")
	writeArtifact(t, root, hls+"/master.m3u8", []byte(masterBody))
	writeArtifact(t, root, hls+"/720p.m3u8", []byte(mediaBody))
	writeArtifact(t, root, hls+"/720p_000.ts", segment)
	writeArtifact(t, root, storage.RawKey("u1", "secret.mp4"), []byte("raw"))

	store := jobs.NewMemoryStore(
		readyJob("j1", "u1"),
		&jobs.Job{ID: "j2", Status: jobs.StatusProcessing, OwnerID: "u1"},
		&jobs.Job{ID: "j3", Status: jobs.StatusUploaded, OwnerID: "u1"},
		&jobs.Job{ID: "j4", Status: jobs.StatusFailed, OwnerID: "u1", FailureReason: "boom"},
	)

	issuer, err := token.NewIssuer(streamSecret)
	require.NoError(t, err)

	h := New(store, files, issuer, nil, cfg)
	router := mux.NewRouter()
	h.Register(router, RouteOptions{RequireAuth: middleware.RequireBearer(authSecret)})

	return &testEnv{h: h, router: router, store: store, issuer: issuer, segment: segment}
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(authSecret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func (e *testEnv) do(t *testing.T, method, target, subject string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	if subject != "" {
		req.Header.Set("Authorization", bearer(t, subject))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestStreamDirectRange(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/videos/j1/stream?file=720p_000.ts", "u1", map[string]string{"Range": "bytes=100-199"})

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 100-199/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, cacheRange, w.Header().Get("Cache-Control"))
	assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))
	assert.Equal(t, env.segment[100:200], w.Body.Bytes())
}

func TestStreamDirectFullBody(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/videos/j1/stream", "u1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, itoa(int64(len(masterBody))), w.Header().Get("Content-Length"))
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.Equal(t, masterBody, w.Body.String())
}

func TestStreamDirectRangeVariants(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name         string
		rangeHeader  string
		wantStatus   int
		wantRange    string
		wantBodySize int
	}{
		{"first range of several", "bytes=0-9,20-29", http.StatusPartialContent, "bytes 0-9/1000", 10},
		{"open ended", "bytes=990-", http.StatusPartialContent, "bytes 990-999/1000", 10},
		{"suffix", "bytes=-50", http.StatusPartialContent, "bytes 950-999/1000", 50},
		{"end clamped", "bytes=900-5000", http.StatusPartialContent, "bytes 900-999/1000", 100},
		{"malformed served in full", "items=0-10", http.StatusOK, "", 1000},
		{"unsatisfiable", "bytes=1000-", http.StatusRequestedRangeNotSatisfiable, "bytes */1000", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/videos/j1/stream?file=720p_000.ts", "u1", map[string]string{"Range": tt.rangeHeader})

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantRange, w.Header().Get("Content-Range"))
			if tt.wantBodySize >= 0 {
				assert.Equal(t, tt.wantBodySize, w.Body.Len())
			}
		})
	}
}

func TestStreamDirectHead(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodHead, "/videos/j1/stream?file=720p_000.ts", "u1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Zero(t, w.Body.Len())
}

func TestStreamDirectOutcomes(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name    string
		target  string
		subject string
		want    int
	}{
		{"no credentials", "/videos/j1/stream", "", http.StatusUnauthorized},
		{"not the owner", "/videos/j1/stream", "u2", http.StatusForbidden},
		{"unknown job", "/videos/missing/stream", "u1", http.StatusNotFound},
		{"processing", "/videos/j2/stream", "u1", http.StatusLocked},
		{"uploaded", "/videos/j3/stream", "u1", http.StatusLocked},
		{"failed", "/videos/j4/stream", "u1", http.StatusNotFound},
		{"missing file", "/videos/j1/stream?file=1080p.m3u8", "u1", http.StatusNotFound},
		{"parent escape", "/videos/j1/stream?file=" + url.QueryEscape("../../../raw/secret.mp4"), "u1", http.StatusNotFound},
		{"absolute path", "/videos/j1/stream?file=" + url.QueryEscape("/etc/passwd"), "u1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, tt.subject, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.NotContains(t, w.Body.String(), "processed")
		})
	}
}

func TestHLSStreamURL(t *testing.T) {
	env := newTestEnv(t, Config{PublicBaseURL: "https://media.example.com/api"})

	w := env.do(t, http.MethodGet, "/videos/j1/hls-stream-url", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp StreamURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	u, err := url.Parse(resp.URL)
	require.NoError(t, err)
	assert.Equal(t, "media.example.com", u.Host)
	assert.Equal(t, "/api/videos/j1/stream/master.m3u8", u.Path)

	claims, err := env.issuer.Validate(u.Query().Get("token"), "j1")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(token.DefaultTTL), resp.ExpiresAt, 5*time.Second)
}

func TestHLSStreamURLFromRequestHost(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/videos/j1/hls-stream-url", "u1", map[string]string{"X-Forwarded-Proto": "https"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp StreamURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.URL, "https://example.com/videos/j1/stream/master.m3u8?token="), resp.URL)
}

func TestHLSStreamURLOutcomes(t *testing.T) {
	env := newTestEnv(t, Config{})

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/videos/j1/hls-stream-url", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/videos/j1/hls-stream-url", "u2", nil).Code)
	assert.Equal(t, http.StatusLocked, env.do(t, http.MethodGet, "/videos/j2/hls-stream-url", "u1", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/videos/j4/hls-stream-url", "u1", nil).Code)
}

func mint(t *testing.T, issuer *token.Issuer, jobID, subject string) string {
	t.Helper()
	tok, _, err := issuer.Mint(jobID, subject)
	require.NoError(t, err)
	return tok
}

func TestStreamHLSRewritesPlaylists(t *testing.T) {
	env := newTestEnv(t, Config{})
	tok := mint(t, env.issuer, "j1", "u1")

	w := env.do(t, http.MethodGet, "/videos/j1/stream/master.m3u8?token="+tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, cachePlaylist, w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), "\n720p.m3u8?token="+tok+"\n")
	assert.Contains(t, w.Body.String(), "#EXT-X-STREAM-INF:BANDWIDTH=2928000,RESOLUTION=1280x720\n")

	w = env.do(t, http.MethodGet, "/videos/j1/stream/720p.m3u8?token="+tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "\n720p_000.ts?token="+tok+"\n")
	assert.Contains(t, w.Body.String(), "#EXT-X-ENDLIST")
	assert.Equal(t, itoa(int64(w.Body.Len())), w.Header().Get("Content-Length"))
}

func TestStreamHLSServesSegments(t *testing.T) {
	env := newTestEnv(t, Config{})
	tok := mint(t, env.issuer, "j1", "u1")

	w := env.do(t, http.MethodGet, "/videos/j1/stream/720p_000.ts?token="+tok, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))
	assert.Equal(t, cacheSegment, w.Header().Get("Cache-Control"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.True(t, bytes.Equal(env.segment, w.Body.Bytes()))

	w = env.do(t, http.MethodGet, "/videos/j1/stream/720p_000.ts?token="+tok, "", map[string]string{"Range": "bytes=0-99"})
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 0-99/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, env.segment[:100], w.Body.Bytes())
}

func TestStreamHLSTokenChecks(t *testing.T) {
	env := newTestEnv(t, Config{})

	stale, err := token.NewIssuer(streamSecret, token.WithClock(func() time.Time {
		return time.Now().Add(-16 * time.Minute)
	}))
	require.NoError(t, err)
	foreign, err := token.NewIssuer([]byte("another-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusForbidden},
		{"garbage", "not-a-token", http.StatusForbidden},
		{"other job", mint(t, env.issuer, "j9", "u1"), http.StatusForbidden},
		{"other subject", mint(t, env.issuer, "j1", "u2"), http.StatusForbidden},
		{"expired", mint(t, stale, "j1", "u1"), http.StatusForbidden},
		{"wrong key", mint(t, foreign, "j1", "u1"), http.StatusForbidden},
		{"valid", mint(t, env.issuer, "j1", "u1"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/videos/j1/stream/master.m3u8?token="+url.QueryEscape(tt.token), "", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestStreamHLSNotPlayable(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/videos/j2/stream/master.m3u8?token="+mint(t, env.issuer, "j2", "u1"), "", nil)
	assert.Equal(t, http.StatusLocked, w.Code)

	w = env.do(t, http.MethodGet, "/videos/j1/stream/poster.jpg?token="+mint(t, env.issuer, "j1", "u1"), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/videos/j1/stream/480p.m3u8?token="+mint(t, env.issuer, "j1", "u1"), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubKey(t *testing.T) {
	base := "u1/videos/processed/j1/hls"

	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{"720p.m3u8", base + "/720p.m3u8", false},
		{"./720p_001.ts", base + "/720p_001.ts", false},
		{"a/../720p.m3u8", base + "/720p.m3u8", false},
		{"", "", true},
		{"..", "", true},
		{"../thumbnail.jpg", "", true},
		{"a/../../x", "", true},
		{"/etc/passwd", "", true},
		{`..\..\x`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := subKey(base, tt.rel)
			if tt.wantErr {
				assert.ErrorIs(t, err, errBadSubPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := subKey("", "720p.m3u8")
	assert.ErrorIs(t, err, errBadSubPath)
}

type pingStore struct {
	*jobs.MemoryStore
	err error
}

func (s pingStore) Ping(context.Context) error {
	return s.err
}

type fakePool struct{ queued, running, workers, capacity int }

func (p fakePool) QueueDepth() int { return p.queued }
func (p fakePool) InFlight() int   { return p.running }
func (p fakePool) Workers() int    { return p.workers }
func (p fakePool) Capacity() int   { return p.capacity }

func TestHealthEndpoints(t *testing.T) {
	healthy := New(pingStore{MemoryStore: jobs.NewMemoryStore()}, nil, nil, fakePool{queued: 3, running: 2, workers: 2, capacity: 16}, Config{})
	r := mux.NewRouter()
	healthy.Register(r, RouteOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, statusHealthy, resp.Status)
	assert.True(t, resp.Ready)
	assert.Equal(t, 3, resp.QueueDepth)
	assert.Equal(t, 2, resp.Workers)
	assert.Equal(t, 16, resp.QueueCapacity)
	assert.Equal(t, 2, resp.JobsInFlight)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/livez", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestHealthEndpointsStoreDown(t *testing.T) {
	down := New(pingStore{MemoryStore: jobs.NewMemoryStore(), err: errors.New("connection refused")}, nil, nil, nil, Config{})
	r := mux.NewRouter()
	down.Register(r, RouteOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, statusDegraded, resp.Status)
	assert.Equal(t, "unreachable", resp.Database)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVersionAndMetricsRoutes(t *testing.T) {
	h := New(jobs.NewMemoryStore(), nil, nil, nil, Config{})
	r := mux.NewRouter()
	h.Register(r, RouteOptions{MetricsEnabled: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"goVersion"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "video_pipeline_")

	plain := mux.NewRouter()
	h.Register(plain, RouteOptions{})
	w = httptest.NewRecorder()
	plain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
