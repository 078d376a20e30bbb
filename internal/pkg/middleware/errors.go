package middleware

import (
	"net/http"

	"chatreel/internal/httpkit"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
)

// ErrorHandlerFunc reports failures by returning them instead of writing them.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler adapts fn to http.HandlerFunc, routing returned errors to HandleError.
func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err (with its stack for 5xx) and writes the error envelope.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := errors.GetHTTPStatus(err)
	attrs := []any{
		"code", string(errors.GetCode(err)),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	}
	for k, v := range errors.GetFields(err) {
		attrs = append(attrs, k, v)
	}

	reqLog := log.FromContext(r.Context()).WithError(err)
	if status < http.StatusInternalServerError {
		reqLog.Warn("request rejected", attrs...)
	} else {
		var appErr *errors.Error
		if errors.As(err, &appErr) {
			if st := appErr.StackTrace(); st != "" {
				attrs = append(attrs, "stack", st)
			}
		}
		reqLog.Error("request failed", attrs...)
	}

	httpkit.WriteError(w, err)
}
