package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatreel/internal/pkg/errors"
)

type capture struct {
	mu     sync.Mutex
	header string
	body   []byte
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.header = r.Header.Get(SignatureHeader)
		c.body = b
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func ptr[T any](v T) *T { return &v }

func TestNotifySignsExactBody(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(http.StatusNoContent))
	defer srv.Close()

	secret := []byte("hook-secret")
	n := New(Config{Secret: string(secret)})
	res := n.Notify(context.Background(), srv.URL, Payload{JobID: "j1", Status: "done", URL: ptr("https://x/y")})

	require.NoError(t, res.Err)
	assert.True(t, res.Delivered)
	assert.True(t, res.Signed)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	assert.JSONEq(t, `{"jobId":"j1","status":"done","url":"https://x/y","error":null}`, string(c.body))
	assert.NoError(t, Verify(secret, c.header, c.body, time.Minute, time.Now()))

	tampered := []byte(strings.Replace(string(c.body), "done", "error", 1))
	assert.True(t, errors.IsCode(Verify(secret, c.header, tampered, time.Minute, time.Now()), errors.CodeForbidden))
	assert.Error(t, Verify([]byte("other"), c.header, c.body, time.Minute, time.Now()))
}

func TestNotifyWithoutSecretOmitsHeader(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	res := New(Config{}).Notify(context.Background(), srv.URL, Payload{JobID: "j1", Status: "error", Error: ptr("boom")})
	assert.True(t, res.Delivered)
	assert.False(t, res.Signed)
	assert.Empty(t, c.header)
}

func TestNotifyNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer((&capture{}).handler(http.StatusInternalServerError))
	defer srv.Close()

	res := New(Config{Secret: "s"}).Notify(context.Background(), srv.URL, Payload{JobID: "j1", Status: "done"})
	assert.False(t, res.Delivered)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Error(t, res.Err)
}

func TestNotifyTimeoutIsBounded(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	res := New(Config{Timeout: 100 * time.Millisecond}).Notify(context.Background(), srv.URL, Payload{JobID: "j1", Status: "done"})
	assert.False(t, res.Delivered)
	assert.Error(t, res.Err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNotifyBadURL(t *testing.T) {
	res := New(Config{}).Notify(context.Background(), "://nope", Payload{JobID: "j1"})
	assert.False(t, res.Delivered)
	assert.True(t, errors.IsValidation(res.Err))
}

func TestVerify(t *testing.T) {
	secret := []byte("k")
	body := []byte(`{"jobId":"a"}`)
	now := time.Unix(1_700_000_000, 0)
	header := Sign(secret, now.Unix(), body)

	tests := []struct {
		name    string
		header  string
		now     time.Time
		tol     time.Duration
		wantErr bool
	}{
		{"genuine", header, now, 5 * time.Minute, false},
		{"no tolerance check", header, now.Add(time.Hour), 0, false},
		{"stale", header, now.Add(10 * time.Minute), 5 * time.Minute, true},
		{"future", header, now.Add(-10 * time.Minute), 5 * time.Minute, true},
		{"empty", "", now, 0, true},
		{"no v1", "t=1700000000", now, 0, true},
		{"bad ts", "t=abc,v1=00", now, 0, true},
		{"rotated secret second v1", header + ",v1=deadbeef", now, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(secret, tt.header, body, tt.tol, tt.now)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
