// Package errors provides coded errors for the render service.
// Codes drive HTTP status mapping and the job failure taxonomy.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Error carries a Code, the failing operation (for example
// "processor.render") and optional structured fields.
type Error struct {
	Code    Code
	Message string
	Op      string
	Err     error
	Fields  map[string]any
	// Stack is captured where the error was built.
	Stack []Frame
}

// Error renders "op: [CODE] message: cause", omitting empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		b.WriteString("[" + string(e.Code) + "] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so sentinels like a ledger's
// ErrClaimConflict match any error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) WithField(key string, value any) *Error {
	return e.WithFields(map[string]any{key: value})
}

func (e *Error) WithFields(fields map[string]any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		e.Fields[k] = v
	}
	return e
}

func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

func build(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: cause, Stack: captureStack(3)}
}

func New(code Code, message string) *Error {
	return build(code, "", message, nil)
}

func Newf(code Code, format string, args ...any) *Error {
	return build(code, "", fmt.Sprintf(format, args...), nil)
}

// Wrap annotates err with op and message. The code and fields of an inner
// *Error carry over; anything else becomes CodeInternal. A nil err gives nil.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	var inner *Error
	if !errors.As(err, &inner) {
		return build(CodeInternal, op, message, err)
	}
	e := build(inner.Code, op, message, err)
	e.Fields = inner.Fields
	return e
}

// WrapWithCode is Wrap with an explicit code. A nil err gives nil.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return build(code, op, message, err)
}

func NotFound(resource string, id string) *Error {
	return build(CodeNotFound, "", resource+" not found: "+id, nil).
		WithFields(map[string]any{"resource": resource, "id": id})
}

func Validation(message string) *Error {
	return build(CodeValidation, "", message, nil)
}

// ValidationField names the offending input under Fields["field"].
func ValidationField(field string, message string) *Error {
	return build(CodeValidation, "", message, nil).WithField("field", field)
}

func Conflict(message string) *Error {
	return build(CodeConflict, "", message, nil)
}

func Timeout(operation string) *Error {
	return build(CodeTimeout, "", "operation timed out: "+operation, nil).WithField("operation", operation)
}

func Unavailable(service string) *Error {
	return build(CodeUnavailable, "", "service unavailable: "+service, nil).WithField("service", service)
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetCode returns the outermost code in err's chain, or CodeInternal.
func GetCode(err error) Code {
	if e, ok := asError(err); ok {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	return GetCode(err).HTTPStatus()
}

func GetFields(err error) map[string]any {
	if e, ok := asError(err); ok {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool { return err != nil && GetCode(err) == code }

func IsNotFound(err error) bool   { return IsCode(err, CodeNotFound) }
func IsValidation(err error) bool { return IsCode(err, CodeValidation) }
func IsConflict(err error) bool   { return IsCode(err, CodeConflict) }

// Truncate shortens s to at most max bytes without splitting a UTF-8 rune.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func As(err error, target any) bool { return errors.As(err, target) }

func Is(err, target error) bool { return errors.Is(err, target) }
