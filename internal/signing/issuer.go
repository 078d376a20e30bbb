// Package signing mints time-limited read URLs for rendered artifacts.
package signing

import (
	"context"
	"strings"
	"time"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/ports"
)

const (
	MinTTLMinutes     = 1
	MaxTTLMinutes     = 1440
	DefaultTTLMinutes = 60
)

// SignedURL is a read link and the instant it stops working.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signer produces a URL for objectName valid until expiresAt.
type Signer interface {
	SignURL(ctx context.Context, objectName string, expiresAt time.Time) (string, error)
}

// ClampTTL bounds ttl to [MinTTLMinutes, MaxTTLMinutes]. Zero or less means the default.
func ClampTTL(ttlMinutes int) int {
	switch {
	case ttlMinutes <= 0:
		return DefaultTTLMinutes
	case ttlMinutes > MaxTTLMinutes:
		return MaxTTLMinutes
	default:
		return ttlMinutes
	}
}

// Issuer clamps the TTL, derives the expiry from its clock and delegates to a Signer.
type Issuer struct {
	signer Signer
	now    func() time.Time
}

func NewIssuer(s Signer) *Issuer {
	return &Issuer{signer: s, now: time.Now}
}

// WithClock replaces the time source.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Sign returns a fresh URL on every call; expiry is truncated to whole seconds.
func (i *Issuer) Sign(ctx context.Context, objectName string, ttlMinutes int) (SignedURL, error) {
	objectName = strings.TrimLeft(strings.TrimSpace(objectName), "/")
	if objectName == "" {
		return SignedURL{}, errors.Validation("object name is required")
	}
	expires := i.now().UTC().Add(time.Duration(ClampTTL(ttlMinutes)) * time.Minute).Truncate(time.Second)

	u, err := i.signer.SignURL(ctx, objectName, expires)
	if err != nil {
		return SignedURL{}, errors.Wrap(err, "signing.sign", "sign url")
	}
	return SignedURL{URL: u, ExpiresAt: expires}, nil
}

// ProviderSigner adapts a storage backend with native signed URLs.
type ProviderSigner struct {
	p   ports.URLSigner
	now func() time.Time
}

func NewProviderSigner(p ports.URLSigner) *ProviderSigner {
	return &ProviderSigner{p: p, now: time.Now}
}

func (s *ProviderSigner) SignURL(ctx context.Context, objectName string, expiresAt time.Time) (string, error) {
	out, err := s.p.GetSignedURL(ctx, objectName, expiresAt.Sub(s.now()))
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New(errors.CodeInternal, "storage provider returned an empty signed url")
	}
	return out.URL, nil
}
