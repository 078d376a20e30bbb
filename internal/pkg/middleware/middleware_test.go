package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
)

func bufferLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf}), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry), buf.String())
	return entry
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFrom(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"minted when absent", "", false},
		{"caller id kept", "req-123.abc", true},
		{"unsafe id replaced", "bad id\r\nx", false},
		{"overlong id replaced", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/render", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, got, seen, "context and header carry the same id")
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.Len(t, got, 32)
				assert.NotEqual(t, tt.incoming, got)
			}
		})
	}
}

func TestLoggingLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusAccepted, "INFO"},
		{http.StatusFound, "INFO"},
		{http.StatusConflict, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			log, buf := bufferLogger()
			h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/render", nil))

			entry := lastLine(t, buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "http request", entry["msg"])
			assert.EqualValues(t, tt.status, entry["status"])
		})
	}
}

func TestLoggingRecordsRouteAndSize(t *testing.T) {
	log, buf := bufferLogger()
	r := chi.NewRouter()
	r.Use(RequestID, Logging(log))
	r.Get("/render/{jobId}/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/render/abc/status", nil))

	entry := lastLine(t, buf)
	assert.Equal(t, "/render/{jobId}/status", entry["route"])
	assert.Equal(t, "/render/abc/status", entry["path"])
	assert.EqualValues(t, 20, entry["bytes"])
	assert.EqualValues(t, 200, entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestStatusRecorder(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rec.Status(), "untouched writer reports 200")

	rec.WriteHeader(http.StatusAccepted)
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.Write([]byte("queued"))

	assert.Equal(t, http.StatusAccepted, rec.Status())
	assert.Equal(t, 6, rec.bytes)
	assert.NotNil(t, rec.Unwrap())
}

func TestRecovery(t *testing.T) {
	log, buf := bufferLogger()
	h := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("renderer exploded")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "renderer exploded")
}

func TestRecoveryReraisesAbort(t *testing.T) {
	h := Recovery(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestTimeoutSetsDeadline(t *testing.T) {
	h := Timeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		assert.True(t, ok)
		<-r.Context().Done()
		w.WriteHeader(http.StatusGatewayTimeout)
	}))

	rec := httptest.NewRecorder()
	start := time.Now()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render/x/download", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWrapHandler(t *testing.T) {
	t.Run("success writes nothing extra", func(t *testing.T) {
		h := WrapHandler(logger.Nop(), func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusAccepted)
			return nil
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("returned error becomes envelope", func(t *testing.T) {
		h := WrapHandler(logger.Nop(), func(w http.ResponseWriter, r *http.Request) error {
			return errors.NotFound("job", "123")
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render/123/status", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})
}

func TestHandleErrorEnvelope(t *testing.T) {
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: io.Discard})

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation error", errors.ValidationField("scene.messages", "messages must not be empty"), 400, "VALIDATION_ERROR", "messages must not be empty"},
		{"not found", errors.NotFound("job", "abc"), 404, "NOT_FOUND", "job not found: abc"},
		{"render failed", errors.New(errors.CodeRenderFailed, "render failed"), 500, "RENDER_FAILED", "render failed"},
		{"message with quotes", errors.Validation(`bad "theme"`), 400, "VALIDATION_ERROR", `bad \"theme\"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, httptest.NewRequest(http.MethodGet, "/render/abc/status", nil), log, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

func TestHandleErrorLogsStackForServerErrors(t *testing.T) {
	log, buf := bufferLogger()
	HandleError(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), log,
		errors.New(errors.CodeInternal, "ledger write failed"))

	entry := lastLine(t, buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.NotEmpty(t, entry["stack"])

	buf.Reset()
	HandleError(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), log,
		errors.Validation("bad"))
	entry = lastLine(t, buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Nil(t, entry["stack"])
}

func TestRoutePatternUnmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}
