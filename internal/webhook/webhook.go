// Package webhook posts signed job outcomes to caller-supplied URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatreel/internal/pkg/errors"
)

const (
	SignatureHeader = "x-signature"
	DefaultTimeout  = 10 * time.Second
)

// Payload is the callback body. URL is null unless the job is done; Error is
// null unless it failed.
type Payload struct {
	JobID         string  `json:"jobId"`
	Status        string  `json:"status"`
	URL           *string `json:"url"`
	Error         *string `json:"error"`
	FileSizeBytes *int64  `json:"fileSizeBytes,omitempty"`
}

// Result describes one delivery attempt. Callers log it; nothing depends on it.
type Result struct {
	Delivered  bool
	StatusCode int
	Signed     bool
	Duration   time.Duration
	Err        error
}

type Config struct {
	Secret  string
	Timeout time.Duration
	Client  *http.Client
}

type Notifier struct {
	secret []byte
	client *http.Client
	now    func() time.Time
}

func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Notifier{secret: []byte(cfg.Secret), client: hc, now: time.Now}
}

// Notify makes a single bounded POST of p to url. It never panics and never
// returns an error; the outcome is reported in Result.
func (n *Notifier) Notify(ctx context.Context, url string, p Payload) Result {
	start := n.now()
	res := n.deliver(ctx, url, p)
	res.Duration = n.now().Sub(start)
	return res
}

func (n *Notifier) deliver(ctx context.Context, url string, p Payload) Result {
	body, err := json.Marshal(p)
	if err != nil {
		return Result{Err: errors.Wrap(err, "webhook.encode", "encode payload")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Err: errors.WrapWithCode(err, errors.CodeValidation, "webhook.request", "build request")}
	}
	req.Header.Set("Content-Type", "application/json")

	res := Result{}
	if len(n.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(n.secret, n.now().Unix(), body))
		res.Signed = true
	}

	resp, err := n.client.Do(req)
	if err != nil {
		res.Err = errors.WrapWithCode(err, errors.CodeUnavailable, "webhook.post", "callback request failed")
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Err = errors.Newf(errors.CodeUnavailable, "callback returned http %d", resp.StatusCode)
		return res
	}
	res.Delivered = true
	return res
}

// Sign returns the header value t=<ts>,v1=hex(HMAC-SHA256(secret, "<ts>.<body>")).
func Sign(secret []byte, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, mac(secret, ts, body))
}

func mac(secret []byte, ts int64, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(strconv.FormatInt(ts, 10)))
	m.Write([]byte("."))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// Verify checks a received header against the exact body bytes. A positive
// tolerance rejects timestamps further than tolerance from now.
func Verify(secret []byte, header string, body []byte, tolerance time.Duration, now time.Time) error {
	var (
		ts   int64
		sigs []string
		seen bool
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errors.New(errors.CodeForbidden, "malformed signature timestamp")
			}
			ts, seen = parsed, true
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if !seen || len(sigs) == 0 {
		return errors.New(errors.CodeForbidden, "malformed signature header")
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > tolerance {
			return errors.New(errors.CodeForbidden, "signature timestamp outside tolerance")
		}
	}

	want := []byte(mac(secret, ts, body))
	for _, s := range sigs {
		if hmac.Equal(want, []byte(s)) {
			return nil
		}
	}
	return errors.New(errors.CodeForbidden, "signature mismatch")
}
