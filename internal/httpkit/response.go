package httpkit

import (
	"encoding/json"
	"io"
	"net/http"

	"chatreel/internal/pkg/errors"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

type ErrorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// DecodeJSON reads a single JSON value from the body. Unknown fields are
// rejected when strict is set.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.New(errors.CodeBadRequest, "request body is empty")
		}
		return errors.WrapWithCode(err, errors.CodeBadRequest, "httpkit.decode", "invalid json body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	var env ErrorEnvelope
	env.Error.Code = code
	env.Error.Message = msg
	env.Error.Details = details
	WriteJSON(w, status, env)
}

// WriteError maps err onto the envelope. Server-side failures only expose the
// top-level message, never the wrapped cause.
func WriteError(w http.ResponseWriter, err error) {
	status := errors.GetHTTPStatus(err)
	msg := "internal server error"
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if status < 500 && appErr.Err != nil {
			msg += ": " + appErr.Err.Error()
		}
	}
	WriteErr(w, status, string(errors.GetCode(err)), msg, errors.GetFields(err))
}
