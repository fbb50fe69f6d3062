package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-pipeline/internal/jobs"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newTestIssuer(t *testing.T, c *clock) *Issuer {
	t.Helper()
	i, err := NewIssuer([]byte("test-secret"), WithClock(c.now))
	require.NoError(t, err)
	return i
}

func TestNewIssuerRejectsEmptySecret(t *testing.T) {
	_, err := NewIssuer(nil)
	assert.Error(t, err)
}

func TestTokenLifetime(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	i := newTestIssuer(t, c)

	tok, exp, err := i.Mint("42", "user-1")
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(DefaultTTL), exp)

	c.t = c.t.Add(14 * time.Minute)
	claims, err := i.Validate(tok, "42")
	require.NoError(t, err, "token should be accepted at minute 14")
	assert.Equal(t, "42", claims.JobID)
	assert.Equal(t, "user-1", claims.Subject)

	c.t = c.t.Add(2 * time.Minute)
	_, err = i.Validate(tok, "42")
	assert.ErrorIs(t, err, jobs.ErrTokenExpired, "token should be rejected at minute 16")
}

func TestValidateRejectsOtherJob(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)

	tok, _, err := i.Mint("42", "user-1")
	require.NoError(t, err)

	_, err = i.Validate(tok, "43")
	assert.ErrorIs(t, err, jobs.ErrInvalidToken)
}

func TestValidateRejectsForeignKey(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)
	other, err := NewIssuer([]byte("another-secret"), WithClock(c.now))
	require.NoError(t, err)

	tok, _, err := other.Mint("42", "user-1")
	require.NoError(t, err)

	_, err = i.Validate(tok, "42")
	assert.ErrorIs(t, err, jobs.ErrInvalidToken)
}

func TestValidateRejectsMalformed(t *testing.T) {
	i := newTestIssuer(t, &clock{t: time.Now()})

	for _, raw := range []string{"", "abc", "a.b.c"} {
		_, err := i.Validate(raw, "42")
		assert.ErrorIs(t, err, jobs.ErrInvalidToken, "raw=%q", raw)
	}
}

func TestValidateRejectsTamperedPayload(t *testing.T) {
	i := newTestIssuer(t, &clock{t: time.Now()})

	tok, _, err := i.Mint("42", "user-1")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	parts[2] = strings.Repeat("A", len(parts[2]))

	_, err = i.Validate(strings.Join(parts, "."), "42")
	assert.ErrorIs(t, err, jobs.ErrInvalidToken)
}

func TestWithTTL(t *testing.T) {
	c := &clock{t: time.Now()}
	i, err := NewIssuer([]byte("s"), WithClock(c.now), WithTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, i.TTL())

	tok, _, err := i.Mint("1", "u")
	require.NoError(t, err)

	c.t = c.t.Add(61 * time.Second)
	_, err = i.Validate(tok, "1")
	assert.ErrorIs(t, err, jobs.ErrTokenExpired)
}
