package main

import (
	"context"
	"net/http"
	"time"

	"chatreel/internal/bootstrap"
	"chatreel/internal/config"
	"chatreel/internal/metrics"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/pkg/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.DefaultConfig("chatreel-worker")).LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "chatreel-worker",
		AddSource:   cfg.Log.AddSource,
	})

	log.Info("starting chatreel worker",
		"version", "0.1.0",
		"renderer", cfg.Renderer.Mode,
		"storage", cfg.Storage.Provider,
		"queue_enabled", cfg.Queue.Enabled,
		"sweeper_enabled", cfg.Sweeper.Enabled,
	)

	if err := cfg.ValidateWorker(); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.HTTP.ShutdownTimeout)
	metrics.MustRegister()

	ledger, closeLedger, err := bootstrap.OpenLedger(ctx, cfg.Ledger, log)
	if err != nil {
		log.LogError(ctx, "failed to open ledger", err)
		shutdownMgr.Exit(1)
	}
	shutdownMgr.RegisterSimple("ledger", closeLedger)

	store, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		log.LogError(ctx, "failed to initialize storage provider", err)
		shutdownMgr.Exit(1)
	}
	shutdownMgr.Register("storage", func(context.Context) error { return store.Close() })

	deps := bootstrap.PipelineDeps{
		Config:  cfg,
		Store:   ledger,
		Storage: store.Provider,
		Issuer:  store.Issuer,
		Log:     log,
	}
	q, closeQueue := bootstrap.OpenQueue(ctx, cfg.Queue, log)
	shutdownMgr.Register("redis", func(context.Context) error { return closeQueue() })
	if q != nil {
		deps.Queue = q
	}

	pipeline, err := bootstrap.NewPipeline(deps)
	if err != nil {
		log.LogError(ctx, "failed to build render pipeline", err)
		shutdownMgr.Exit(1)
	}

	// Metrics only; the worker has no other HTTP surface.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTP.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(ctx, "metrics server failed", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		err := pipeline.Run(shutdownMgr.Context(), cfg.HTTP.ShutdownTimeout/2)
		close(done)
		if err != nil {
			log.LogError(ctx, "render pipeline stopped", err)
			shutdownMgr.Exit(1)
		}
	}()

	shutdownMgr.Register("render-pipeline", func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdownMgr.Register("metrics-server", metricsSrv.Shutdown)

	shutdownMgr.Wait(ctx)
}
