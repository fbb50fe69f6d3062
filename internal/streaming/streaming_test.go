package streaming

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 64*1024, cfg.ChunkSize)
}

func TestCopyAll(t *testing.T) {
	w := httptest.NewRecorder()
	body := strings.Repeat("a", 200_000)

	n, err := Copy(context.Background(), w, strings.NewReader(body), -1, "direct", DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, w.Body.String())
	assert.Empty(t, w.Header().Get("Transfer-Encoding"))
}

func TestCopyLimit(t *testing.T) {
	w := httptest.NewRecorder()

	n, err := Copy(context.Background(), w, strings.NewReader("0123456789"), 4, "segment", Config{ChunkSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "0123", w.Body.String())
}

func TestCopyClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := Copy(ctx, httptest.NewRecorder(), strings.NewReader("data"), -1, "direct", DefaultConfig())
	assert.ErrorIs(t, err, ErrClientGone)
	assert.Zero(t, n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestCopyReadError(t *testing.T) {
	_, err := Copy(context.Background(), httptest.NewRecorder(), failingReader{}, -1, "direct", DefaultConfig())
	assert.EqualError(t, err, "disk gone")
}

func TestExpected(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{ErrClientGone, true},
		{context.Canceled, true},
		{ErrWriteTimeout, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Expected(tt.err), "%v", tt.err)
	}
}
