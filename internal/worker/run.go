package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"chatreel/internal/dispatch"
	"chatreel/internal/pkg/logger"
)

// Run consumes the queue with d.Consumers goroutines until ctx ends. Every id
// goes through the same ClaimAndRun used by the sweeper, so duplicate or
// stale messages are harmless.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("consumer")
	if d.Consumers <= 0 {
		d.Consumers = 1
	}
	if d.PopTimeout <= 0 {
		d.PopTimeout = 5 * time.Second
	}
	if d.Backoff <= 0 {
		d.Backoff = time.Second
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.Consumers; i++ {
		g.Go(func() error {
			consume(ctx, d, log.With("consumer", i))
			return nil
		})
	}
	log.Info("queue consumers started", "count", d.Consumers)
	err := g.Wait()
	log.Info("queue consumers stopped")
	return err
}

func consume(ctx context.Context, d Deps, log *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := d.Queue.Pop(ctx, d.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			if !sleep(ctx, d.Backoff) {
				return
			}
			continue
		}
		if jobID == "" {
			continue
		}

		jobCtx := logger.ContextWithJobID(ctx, jobID)
		startTime := time.Now()
		out, err := d.Runner.ClaimAndRun(jobCtx, jobID, dispatch.PathQueue)
		switch {
		case err != nil:
			// The job stays startable; the sweeper retries it.
			log.Warn("claim and run failed", "job_id", jobID, "error", err.Error())
		case out.Skipped:
			log.Debug("message skipped", "job_id", jobID)
		default:
			log.Info("job processed",
				"job_id", jobID,
				"status", string(out.Status),
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
