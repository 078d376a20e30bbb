package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "chatreel/internal/contracts/renderer/v1"
	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/timeline"
)

func testSpec(t *testing.T, out string) v1.RenderSpec {
	t.Helper()
	job := models.Job{
		ID: "job-1",
		Scene: models.Scene{
			ContactName: "Sam",
			Theme:       "imessage",
			Messages:    []models.Message{{Text: "Hi", SentByUser: true}, {Text: "Hey"}},
		},
	}
	return v1.NewRenderSpec(job, "", out, timeline.DefaultTunables())
}

func TestHTTPEngineSendsSpec(t *testing.T) {
	var got v1.RenderSpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.URL+"/", time.Second)
	require.NoError(t, e.Render(context.Background(), testSpec(t, "/work/out.mp4")))

	assert.Equal(t, v1.Version, got.Version)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, v1.DefaultComposition, got.Composition)
	assert.Equal(t, "/work/out.mp4", got.OutputPath)
	assert.Len(t, got.Schedule.Entries, 2)
}

func TestHTTPEngineErrorCarriesTruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("a", 10_000) + "chromium crashed"))
	}))
	defer srv.Close()

	err := NewHTTPEngine(srv.URL, time.Second).Render(context.Background(), testSpec(t, "/o.mp4"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "chromium crashed")
	assert.Less(t, len(err.Error()), maxDiagnostic+200)
}

func TestHTTPEngineHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewHTTPEngine(srv.URL, time.Minute).Render(ctx, testSpec(t, "/o.mp4"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	p := filepath.Join(t.TempDir(), "render.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestCommandEngineCallingConvention(t *testing.T) {
	work := t.TempDir()
	script := writeScript(t, `
test -f "$1" || { echo "missing props" >&2; exit 2; }
grep -q '"jobId":"job-1"' "$1" || { echo "bad props" >&2; exit 2; }
[ "$3" = "MessageConversation" ] || { echo "bad composition $3" >&2; exit 2; }
printf 'mp4' > "$2"
`)
	out := filepath.Join(work, "out.mp4")

	e := NewCommandEngine(script, work)
	require.NoError(t, e.Render(context.Background(), testSpec(t, out)))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "mp4", string(data))

	leftovers, _ := filepath.Glob(filepath.Join(work, "props_*.json"))
	assert.Empty(t, leftovers, "props file must be removed")
}

func TestCommandEngineFailureKeepsStderrTail(t *testing.T) {
	script := writeScript(t, `
i=0
while [ $i -lt 500 ]; do echo "noise line $i" >&2; i=$((i+1)); done
echo "fatal: composition not found" >&2
exit 3
`)
	err := NewCommandEngine(script, t.TempDir()).Render(context.Background(), testSpec(t, "/nowhere.mp4"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	assert.Contains(t, err.Error(), "fatal: composition not found")
	assert.NotContains(t, err.Error(), "noise line 0\n")
}

func TestCommandEngineTimeout(t *testing.T) {
	script := writeScript(t, "sleep 5\n")
	e := NewCommandEngine(script, t.TempDir())
	e.waitDelay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := e.Render(ctx, testSpec(t, "/nowhere.mp4"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defgh"))
	assert.Equal(t, "defgh", b.String())
}
