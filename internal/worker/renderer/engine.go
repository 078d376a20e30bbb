// Package renderer drives the external engine that turns a render spec into an MP4.
package renderer

import (
	"context"

	v1 "chatreel/internal/contracts/renderer/v1"
)

// Engine renders spec and writes the video to spec.OutputPath. It must honour
// ctx cancellation.
type Engine interface {
	Name() string
	Render(ctx context.Context, spec v1.RenderSpec) error
}

// maxDiagnostic bounds how much engine output is kept in an error.
const maxDiagnostic = 2048

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
