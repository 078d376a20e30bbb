package bootstrap

import (
	"context"
	"time"

	"chatreel/internal/config"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/ports"
	"chatreel/internal/repositories"
	"chatreel/internal/signing"
	"chatreel/internal/webhook"
	"chatreel/internal/worker"
	"chatreel/internal/worker/processor"
	"chatreel/internal/worker/renderer"
	"chatreel/internal/worker/sweeper"
)

// NewEngine builds the rendering engine selected by RENDERER_MODE.
func NewEngine(cfg config.RendererConfig) (renderer.Engine, error) {
	switch cfg.Mode {
	case config.RendererHTTP:
		return renderer.NewHTTPEngine(cfg.BaseURL, cfg.Timeout), nil
	case config.RendererCommand:
		return renderer.NewCommandEngine(cfg.Command, cfg.WorkDir), nil
	default:
		return nil, errors.ValidationField("RENDERER_MODE", "unknown renderer mode: "+cfg.Mode)
	}
}

type PipelineDeps struct {
	Config  config.Config
	Store   repositories.JobStore
	Storage ports.StorageProvider
	Issuer  *signing.Issuer
	// Queue may be nil; only the sweeper runs then.
	Queue worker.Popper
	Log   *logger.Logger
}

// Pipeline is the render side of the system: one processor fed by the queue
// consumers and the polling sweeper.
type Pipeline struct {
	processor *processor.Processor
	sweeper   *sweeper.Sweeper
	queue     worker.Popper
	cfg       config.Config
	log       *logger.Logger
}

func NewPipeline(d PipelineDeps) (*Pipeline, error) {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	engine, err := NewEngine(d.Config.Renderer)
	if err != nil {
		return nil, err
	}

	proc := processor.New(processor.Deps{
		Store:   d.Store,
		Engine:  engine,
		Storage: d.Storage,
		Issuer:  d.Issuer,
		Notifier: webhook.New(webhook.Config{
			Secret:  d.Config.Webhook.Secret,
			Timeout: d.Config.Webhook.Timeout,
		}),
		Log:           log,
		WorkDir:       d.Config.Renderer.WorkDir,
		Composition:   d.Config.Renderer.Composition,
		RenderTimeout: d.Config.Renderer.Timeout,
		Concurrency:   d.Config.Renderer.Concurrency,
		TTLMinutes:    d.Config.Signing.TTLMinutes,
		StaleAfter:    d.Config.Ledger.StaleAfter,
	})

	p := &Pipeline{processor: proc, queue: d.Queue, cfg: d.Config, log: log}
	if d.Config.Sweeper.Enabled {
		p.sweeper = sweeper.New(sweeper.Options{
			Store:      d.Store,
			Runner:     proc,
			Interval:   d.Config.Sweeper.Interval,
			Batch:      d.Config.Sweeper.Batch,
			StaleAfter: d.Config.Ledger.StaleAfter,
			Log:        log,
		})
	}
	log.Info("render pipeline ready",
		"engine", engine.Name(),
		"concurrency", d.Config.Renderer.Concurrency,
		"queue", d.Queue != nil,
		"sweeper", p.sweeper != nil,
	)
	return p, nil
}

// Run blocks until ctx ends. The sweeper is stopped within stopTimeout so an
// in-flight sweep can record its outcome.
func (p *Pipeline) Run(ctx context.Context, stopTimeout time.Duration) error {
	if p.sweeper != nil {
		if err := p.sweeper.Start(ctx); err != nil {
			return errors.Wrap(err, "bootstrap.pipeline", "start sweeper")
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			if err := p.sweeper.Stop(stopCtx); err != nil {
				p.log.WithError(err).Warn("sweeper did not stop in time")
			}
		}()
	}

	if p.queue == nil {
		<-ctx.Done()
		return nil
	}
	return worker.Run(ctx, worker.Deps{
		Queue:      p.queue,
		Runner:     p.processor,
		Log:        p.log,
		Consumers:  p.cfg.Queue.Consumers,
		PopTimeout: p.cfg.Queue.PopTimeout,
	})
}
