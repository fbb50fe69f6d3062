package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"video-pipeline/internal/jobs"
	"video-pipeline/internal/metrics"
)

// DefaultTTL is how long a minted stream token stays valid.
const DefaultTTL = 15 * time.Minute

const keyInfo = "video-pipeline stream token v1"

// Claims is the payload of a stream access token.
type Claims struct {
	JobID string `json:"jobId"`
	jwt.RegisteredClaims
}

// Issuer mints and validates HS256 stream tokens. Tokens are never stored.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock replaces time.Now for minting and validation.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer derives the signing key from secret with HKDF-SHA256.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("stream token secret is empty")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive stream token key: %w", err)
	}

	i := &Issuer{key: key, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the lifetime of minted tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Mint returns a token scoped to jobID and subject and its expiry.
func (i *Issuer) Mint(jobID, subject string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)

	claims := Claims{
		JobID: jobID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign stream token: %w", err)
	}

	metrics.StreamTokensIssued.Inc()
	return signed, exp, nil
}

// Validate checks the signature and expiry of raw and that it was minted
// for jobID. It returns the token claims on success, jobs.ErrTokenExpired
// for an expired token and jobs.ErrInvalidToken for everything else.
func (i *Issuer) Validate(raw, jobID string) (*Claims, error) {
	if raw == "" {
		metrics.StreamTokenRejections.WithLabelValues("missing").Inc()
		return nil, jobs.ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			metrics.StreamTokenRejections.WithLabelValues("expired").Inc()
			return nil, fmt.Errorf("%w: %v", jobs.ErrTokenExpired, err)
		}
		metrics.StreamTokenRejections.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", jobs.ErrInvalidToken, err)
	}

	if claims.JobID != jobID {
		metrics.StreamTokenRejections.WithLabelValues("job_mismatch").Inc()
		return nil, fmt.Errorf("%w: token is for another job", jobs.ErrInvalidToken)
	}

	return claims, nil
}
