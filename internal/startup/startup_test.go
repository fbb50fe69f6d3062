package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Equal(t, GoVersion, info.GoVersion)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_SET_VAR", "custom")
	assert.Equal(t, "custom", getEnv("TEST_SET_VAR", "default"))

	t.Setenv("TEST_EMPTY_VAR", "")
	assert.Equal(t, "default", getEnv("TEST_EMPTY_VAR", "default"))

	os.Unsetenv("TEST_UNSET_VAR")
	assert.Equal(t, "default", getEnv("TEST_UNSET_VAR", "default"))
}

// configEnv clears every variable LoadConfig reads and points the
// directories at a temp dir.
func configEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "PORT", "PUBLIC_BASE_URL",
		"AMQP_URL", "AMQP_QUEUE", "AMQP_PREFETCH", "EVENT_MAX_RETRIES", "EVENT_RETRY_INTERVAL",
		"TRANSCODE_WORKERS", "TRANSCODE_QUEUE", "FFMPEG_PATH", "FFPROBE_PATH",
		"STREAM_TOKEN_SECRET", "STREAM_TOKEN_TTL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
		"METRICS_ENABLED", "LOG_STATIC_FILES", "LOG_HEALTH_CHECKS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("STORAGE_ROOT", filepath.Join(dir, "videos"))
	t.Setenv("DATABASE_DIR", filepath.Join(dir, "db"))
	t.Setenv("AUTH_JWT_SECRET", "auth-secret")
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := configEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "videos"), cfg.StorageRoot)
	assert.DirExists(t, cfg.StorageRoot)
	assert.Equal(t, filepath.Join(dir, "db", "jobs.db"), cfg.DatabasePath)
	assert.Equal(t, cfg.DatabasePath, cfg.DatabaseDSN())
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultAMQPQueue, cfg.AMQPQueue)
	assert.Equal(t, DefaultAMQPPrefetch, cfg.AMQPPrefetch)
	assert.Equal(t, 2, cfg.EventMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.EventRetryInterval)
	assert.GreaterOrEqual(t, cfg.TranscodeWorkers, 1)
	assert.LessOrEqual(t, cfg.TranscodeWorkers, DefaultTranscodeWorkers)
	assert.Equal(t, 500, cfg.TranscodeQueue)
	assert.Equal(t, 15*time.Minute, cfg.StreamTokenTTL)
	assert.Equal(t, "auth-secret", string(cfg.StreamTokenSecret), "falls back to AUTH_JWT_SECRET")
	assert.False(t, cfg.SMTP.Enabled(), "SMTP is off without SMTP_HOST")
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.LogStaticFiles)
	assert.True(t, cfg.LogHealthChecks)
}

func TestLoadConfigOverrides(t *testing.T) {
	configEnv(t)
	t.Setenv("TRANSCODE_WORKERS", "6")
	t.Setenv("TRANSCODE_QUEUE", "0")
	t.Setenv("EVENT_MAX_RETRIES", "0")
	t.Setenv("STREAM_TOKEN_SECRET", "stream-secret")
	t.Setenv("STREAM_TOKEN_TTL", "5m")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.TranscodeWorkers)
	assert.Equal(t, DefaultTranscodeQueue, cfg.TranscodeQueue, "invalid TRANSCODE_QUEUE falls back")
	assert.Zero(t, cfg.EventMaxRetries)
	assert.Equal(t, "stream-secret", string(cfg.StreamTokenSecret))
	assert.Equal(t, 5*time.Minute, cfg.StreamTokenTTL)
	assert.Equal(t, "https://cdn.example.com", cfg.PublicBaseURL)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing auth secret", map[string]string{"AUTH_JWT_SECRET": ""}, "AUTH_JWT_SECRET"},
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}, "DATABASE_URL"},
		{"relative base url", map[string]string{"PUBLIC_BASE_URL": "cdn.example.com"}, "PUBLIC_BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigStorageRootIsFile(t *testing.T) {
	dir := configEnv(t)
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	t.Setenv("STORAGE_ROOT", file)

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	sqlite := &Config{DatabaseDriver: "sqlite", DatabasePath: "/database/jobs.db", DatabaseURL: "postgres://ignored"}
	assert.Equal(t, "/database/jobs.db", sqlite.DatabaseDSN())

	pg := &Config{DatabaseDriver: "postgres", DatabasePath: "/database/jobs.db", DatabaseURL: "postgres://app@db/jobs"}
	assert.Equal(t, "postgres://app@db/jobs", pg.DatabaseDSN())
}

func TestGetRoutes(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", noop).Methods(http.MethodGet)
	videos := r.PathPrefix("/videos/{id}").Subrouter()
	videos.HandleFunc("/stream", noop).Methods(http.MethodGet, http.MethodHead)

	routes, err := GetRoutes(r)
	require.NoError(t, err)

	got := make([]string, 0, len(routes))
	for _, rt := range routes {
		got = append(got, rt.Method+" "+rt.Path)
	}
	assert.ElementsMatch(t, []string{
		"GET /healthz",
		"GET /videos/{id}/stream",
		"HEAD /videos/{id}/stream",
	}, got)
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/videos/{id}/stream": "videos",
		"/healthz":            "healthz",
		"/":                   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, getRouteGroup(in), in)
	}
}
