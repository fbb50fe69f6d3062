package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/handlers"
	"video-pipeline/internal/jobs"
	"video-pipeline/internal/metrics"
	"video-pipeline/internal/startup"
)

type fakeDB struct{ refreshed int }

func (f *fakeDB) UpdateDBMetrics() { f.refreshed++ }

type fakeProvider struct {
	stats metrics.Stats
	err   error
}

func (f fakeProvider) GetStats(context.Context) (metrics.Stats, error) {
	return f.stats, f.err
}

func TestStatsAdapter(t *testing.T) {
	db := &fakeDB{}
	adapter := &statsAdapter{db: db, disp: fakeProvider{stats: metrics.Stats{
		QueueDepth:   3,
		JobsInFlight: 1,
		JobsByStatus: map[string]int{"READY": 7},
	}}}

	var _ metrics.StatsProvider = adapter

	stats, err := adapter.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.QueueDepth)
	assert.Equal(t, 1, stats.JobsInFlight)
	assert.Equal(t, 7, stats.JobsByStatus["READY"])
	assert.Equal(t, 1, db.refreshed, "UpdateDBMetrics called once")

	failing := &statsAdapter{db: db, disp: fakeProvider{err: errors.New("db down")}}
	_, err = failing.GetStats(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestSetupRouter(t *testing.T) {
	config := &startup.Config{AuthSecret: []byte("secret"), MetricsEnabled: true}
	h := handlers.New(jobs.NewMemoryStore(), nil, nil, nil, handlers.Config{})
	router := setupRouter(h, config)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/livez", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/videos/abc/stream", http.StatusUnauthorized},
		{http.MethodGet, "/videos/abc/hls-stream-url", http.StatusUnauthorized},
		{http.MethodPost, "/videos/abc/stream", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSetupRouterRecordsRouteTemplates(t *testing.T) {
	config := &startup.Config{AuthSecret: []byte("secret")}
	router := setupRouter(handlers.New(jobs.NewMemoryStore(), nil, nil, nil, handlers.Config{}), config)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/videos/{id}/stream", "401")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/"+id+"/stream", http.NoBody))
	}

	assert.InDelta(t, 3, testutil.ToFloat64(counter)-before, 0.001)
}
