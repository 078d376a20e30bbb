package worker

import (
	"context"
	"time"

	"chatreel/internal/dispatch"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/worker/processor"
)

// Popper hands out queued job ids. An empty id with a nil error means the
// wait elapsed.
type Popper interface {
	Pop(ctx context.Context, wait time.Duration) (string, error)
}

type Runner interface {
	ClaimAndRun(ctx context.Context, jobID string, path dispatch.DeliveryPath) (processor.Outcome, error)
}

type Deps struct {
	Queue  Popper
	Runner Runner
	Log    *logger.Logger

	// Consumers is the number of goroutines blocked on the queue.
	Consumers  int
	PopTimeout time.Duration
	// Backoff is the pause after a queue error.
	Backoff time.Duration
}
