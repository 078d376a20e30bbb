package errors

import "net/http"

// Code classifies a failure. It selects the HTTP status of API errors and is
// the category recorded for failed render jobs.
type Code string

const (
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeTimeout      Code = "TIMEOUT"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeRenderFailed Code = "RENDER_FAILED"
	CodeUploadFailed Code = "UPLOAD_FAILED"
)

var statusByCode = map[Code]int{
	CodeValidation:  http.StatusBadRequest,
	CodeBadRequest:  http.StatusBadRequest,
	CodeForbidden:   http.StatusForbidden,
	CodeNotFound:    http.StatusNotFound,
	CodeConflict:    http.StatusConflict,
	CodeTimeout:     http.StatusGatewayTimeout,
	CodeUnavailable: http.StatusServiceUnavailable,
}

// HTTPStatus is the response status for c. Render and upload failures are
// server errors like any unknown code.
func (c Code) HTTPStatus() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}
