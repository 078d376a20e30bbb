package processor

import (
	"context"
	stderrors "errors"
	"time"

	v1 "chatreel/internal/contracts/renderer/v1"
	"chatreel/internal/metrics"
	"chatreel/internal/models"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/timeline"
	"chatreel/internal/worker/renderer"
)

// RendererAdapter turns a claimed job into a render spec and runs the engine
// under a timeout, classifying what went wrong.
type RendererAdapter struct {
	engine      renderer.Engine
	composition string
	timeout     time.Duration
	tunables    timeline.Tunables
}

func NewRendererAdapter(engine renderer.Engine, composition string, timeout time.Duration, t timeline.Tunables) *RendererAdapter {
	return &RendererAdapter{engine: engine, composition: composition, timeout: timeout, tunables: t}
}

func (ra *RendererAdapter) Render(ctx context.Context, job models.Job, outputPath string) error {
	spec := v1.NewRenderSpec(job, ra.composition, outputPath, ra.tunables)

	if ra.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ra.timeout)
		defer cancel()
	}

	done := metrics.RenderStarted(ra.engine.Name())
	err := ra.engine.Render(ctx, spec)
	done(err == nil)

	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.WrapWithCode(err, errors.CodeTimeout, "processor.render",
			"render timed out after "+ra.timeout.String())
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "processor.render", "render canceled")
	}
	if errors.IsCode(err, errors.CodeRenderFailed) {
		return err
	}
	return errors.WrapWithCode(err, errors.CodeRenderFailed, "processor.render", "render engine failed")
}
