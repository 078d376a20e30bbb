// Package middleware provides the HTTP middleware chain of the render API.
package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"chatreel/internal/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// Inbound ids are echoed back into headers and logs, so only plain tokens are kept.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID propagates the caller's X-Request-ID, or mints one, into the
// response header and the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = newRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

// newRequestID returns 32 hex characters.
func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
