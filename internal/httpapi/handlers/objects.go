package handlers

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatreel/internal/pkg/errors"
)

// StreamObject serves an HMAC-signed link minted by the signing package.
// Providers that sign natively never produce such links, so the route answers
// 404 when no verifier is configured.
func (h *Handler) StreamObject(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if h.links == nil || h.sp == nil {
		return errors.NotFound("object", r.URL.Path)
	}

	name := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			return errors.WrapWithCode(err, errors.CodeBadRequest, "objects.stream", "malformed object path")
		}
		name = unescaped
	}
	if name == "" {
		return errors.NotFound("object", "")
	}

	q := r.URL.Query()
	if err := h.links.Verify(name, q.Get("expires"), q.Get("sig"), h.now()); err != nil {
		return err
	}

	rc, ct, size, err := h.sp.GetObject(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(ctx).WithError(err).Warn("object stream interrupted", "object", name)
	}
	return nil
}
