package logger

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	jobIDKey
)

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// RequestIDFrom returns the request id stored in ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// JobIDFrom returns the job id stored in ctx, or "".
func JobIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}

// FromContext scopes l to the request and job ids carried by ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if id := RequestIDFrom(ctx); id != "" {
		out = out.WithRequestID(id)
	}
	if id := JobIDFrom(ctx); id != "" {
		out = out.WithJobID(id)
	}
	return out
}
