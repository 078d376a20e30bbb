package gdrive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"chatreel/internal/pkg/errors"
	"chatreel/internal/ports"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("drive service: %v", err)
	}
	return NewClient(svc, "folder")
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
}

func TestGetMissingIsNotFound(t *testing.T) {
	c := newTestClient(t, notFound)
	_, _, _, err := c.GetObject(context.Background(), "missing")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	c := newTestClient(t, notFound)
	if err := c.DeleteObject(context.Background(), "missing"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestGetStreamsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "media" {
			t.Errorf("expected media download, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4"))
	})
	rc, ct, _, err := c.GetObject(context.Background(), "file-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	if ct != "video/mp4" {
		t.Errorf("expected video/mp4, got %s", ct)
	}
}

func TestPutRequiresKey(t *testing.T) {
	c := newTestClient(t, notFound)
	if _, err := c.PutObject(context.Background(), ports.PutObjectInput{}); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
