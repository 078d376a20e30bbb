// Package sweeper periodically drives pending and stale jobs from the ledger.
// It keeps the system correct when the queue is disabled or drops messages.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chatreel/internal/dispatch"
	"chatreel/internal/metrics"
	"chatreel/internal/models"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/worker/processor"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultBatch    = 5
)

type Lister interface {
	ListStartable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Job, error)
}

type Runner interface {
	ClaimAndRun(ctx context.Context, jobID string, path dispatch.DeliveryPath) (processor.Outcome, error)
}

type Options struct {
	Store      Lister
	Runner     Runner
	Interval   time.Duration
	Batch      int
	StaleAfter time.Duration
	Log        *logger.Logger
}

type Sweeper struct {
	store      Lister
	runner     Runner
	interval   time.Duration
	batch      int
	staleAfter time.Duration
	log        *logger.Logger
	now        func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New(o Options) *Sweeper {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Batch <= 0 {
		o.Batch = DefaultBatch
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = processor.DefaultStaleAfter
	}
	log := o.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		store:      o.Store,
		runner:     o.Runner,
		interval:   o.Interval,
		batch:      o.Batch,
		staleAfter: o.StaleAfter,
		log:        log.WithComponent("sweeper"),
		now:        time.Now,
	}
}

// Start schedules sweeps every interval until Stop or until ctx ends. A tick
// that is still running when the next one fires is skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.Sweep(s.ctx) }); err != nil {
		s.cancel()
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("sweeper started", "interval", s.interval.String(), "batch", s.batch)
	return nil
}

// Stop cancels the running sweep and waits for it, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pass: list up to batch startable jobs, oldest first, and
// claim-and-run each in turn. It returns how many jobs this pass finished.
func (s *Sweeper) Sweep(ctx context.Context) int {
	jobs, err := s.store.ListStartable(ctx, s.batch, s.now().Add(-s.staleAfter))
	if err != nil {
		metrics.Swept("error")
		s.log.WithError(err).Warn("list startable jobs failed, retrying next tick")
		return 0
	}
	if len(jobs) == 0 {
		metrics.Swept("empty")
		return 0
	}
	metrics.Swept("ok")

	finished := 0
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		out, err := s.runner.ClaimAndRun(logger.ContextWithJobID(ctx, j.ID), j.ID, dispatch.PathPolling)
		if err != nil {
			s.log.WithJobID(j.ID).WithError(err).Warn("sweep claim failed")
			continue
		}
		if !out.Skipped {
			finished++
		}
	}
	return finished
}

// cronLogger routes cron's own messages into the service logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.With(append([]any{"error", err.Error()}, keysAndValues...)...).Error(msg)
}
