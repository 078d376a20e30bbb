package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	v1 "chatreel/internal/contracts/renderer/v1"
	"chatreel/internal/pkg/errors"
)

// HTTPEngine posts the spec to a render service that shares WORK_DIR with the
// worker and writes the file before responding.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Render(ctx context.Context, spec v1.RenderSpec) error {
	return e.post(ctx, "/render", spec)
}

func (e *HTTPEngine) post(ctx context.Context, path string, spec any) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, "renderer.http", "encode spec")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "renderer.http", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		tail := newTailBuffer(maxDiagnostic)
		_, _ = io.Copy(tail, io.LimitReader(res.Body, 1<<20))
		msg := strings.TrimSpace(tail.String())
		if msg == "" {
			return errors.Newf(errors.CodeRenderFailed, "renderer http %d", res.StatusCode)
		}
		return errors.Newf(errors.CodeRenderFailed, "renderer http %d: %s", res.StatusCode, msg)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	return nil
}
