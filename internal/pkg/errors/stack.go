package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	maxStackDepth  = 32
	maxStackFrames = 10
)

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// StackTrace formats Stack one frame per line, for server-error logs.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// captureStack records up to maxStackFrames non-runtime frames, skipping
// skip callers.
func captureStack(skip int) []Frame {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	frames := make([]Frame, 0, maxStackFrames)
	for len(frames) < maxStackFrames {
		f, more := it.Next()
		if !strings.Contains(f.File, "runtime/") {
			frames = append(frames, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return frames
}
