package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chatreel/internal/pkg/errors"
)

// ObjectsPath is the API route prefix that serves HMAC-signed links.
const ObjectsPath = "/objects/"

// HMACSigner signs links to the API's object proxy:
//
//	<base>/objects/<name>?expires=<unix>&sig=hex(HMAC-SHA256(secret, name+"\n"+expires))
type HMACSigner struct {
	baseURL string
	secret  []byte
}

func NewHMACSigner(baseURL, secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, errors.ValidationField("URL_SIGNING_SECRET", "signing secret is required")
	}
	return &HMACSigner{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}, nil
}

func (s *HMACSigner) mac(objectName string, expires int64) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(objectName))
	m.Write([]byte("\n"))
	m.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(m.Sum(nil))
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (s *HMACSigner) SignURL(_ context.Context, objectName string, expiresAt time.Time) (string, error) {
	exp := expiresAt.Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", s.mac(objectName, exp))
	return s.baseURL + ObjectsPath + escapePath(objectName) + "?" + q.Encode(), nil
}

// Verify checks a link's expiry and signature. Both failures are CodeForbidden.
func (s *HMACSigner) Verify(objectName, expires, sig string, now time.Time) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return errors.New(errors.CodeForbidden, "malformed expiry")
	}
	want := s.mac(objectName, exp)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(sig))) {
		return errors.New(errors.CodeForbidden, "invalid signature")
	}
	if now.Unix() > exp {
		return errors.New(errors.CodeForbidden, "link expired").WithField("expiredAt", exp)
	}
	return nil
}
