package main

import (
	"context"
	"net/http"

	"chatreel/internal/bootstrap"
	"chatreel/internal/config"
	"chatreel/internal/dispatch"
	"chatreel/internal/httpapi"
	"chatreel/internal/httpapi/handlers"
	"chatreel/internal/metrics"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/pkg/shutdown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.DefaultConfig("chatreel-api")).LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "chatreel-api",
		AddSource:   cfg.Log.AddSource,
	})

	log.Info("starting chatreel API",
		"version", "0.1.0",
		"ledger", cfg.Ledger.Driver,
		"storage", cfg.Storage.Provider,
		"queue_enabled", cfg.Queue.Enabled,
	)

	if err := cfg.ValidateAPI(); err != nil {
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

	hd := handlers.Deps{
		Jobs:       ledger,
		Ledger:     ledger,
		Storage:    store.Provider,
		Issuer:     store.Issuer,
		TTLMinutes: cfg.Signing.TTLMinutes,
		Download: handlers.DownloadOptions{
			DefaultWait: cfg.Download.DefaultWait,
			MaxWait:     cfg.Download.MaxWait,
			PollEvery:   cfg.Download.PollEvery,
		},
		Log: log,
	}
	if store.Links != nil {
		hd.Links = store.Links
	}

	dispatchOpts := dispatch.Options{
		Store:          ledger,
		EnqueueTimeout: cfg.Queue.EnqueueTimeout,
		Log:            log,
	}

	if cfg.EmbeddedWorker() {
		// No other process can see this ledger, so jobs are rendered here and
		// picked up by the sweeper alone.
		if cfg.Queue.Enabled {
			log.Warn("queue ignored with the in-memory ledger")
		}
		pipeline, err := bootstrap.NewPipeline(bootstrap.PipelineDeps{
			Config:  cfg,
			Store:   ledger,
			Storage: store.Provider,
			Issuer:  store.Issuer,
			Log:     log,
		})
		if err != nil {
			log.LogError(ctx, "failed to build embedded render pipeline", err)
			shutdownMgr.Exit(1)
		}
		pipelineDone := make(chan struct{})
		go func() {
			defer close(pipelineDone)
			if err := pipeline.Run(shutdownMgr.Context(), cfg.HTTP.ShutdownTimeout/2); err != nil {
				log.LogError(ctx, "embedded render pipeline stopped", err)
			}
		}()
		shutdownMgr.Register("render-pipeline", func(ctx context.Context) error {
			select {
			case <-pipelineDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	} else {
		q, closeQueue := bootstrap.OpenQueue(ctx, cfg.Queue, log)
		shutdownMgr.Register("redis", func(context.Context) error { return closeQueue() })
		if q != nil {
			dispatchOpts.Queue = q
			hd.Queue = q
		}
	}

	hd.Dispatcher = dispatch.New(dispatchOpts)

	router := httpapi.NewRouter(httpapi.Options{
		Handlers:       hd,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Log:            log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(ctx, "HTTP server failed", err)
			shutdownMgr.Exit(1)
		}
	}()

	shutdownMgr.Wait(ctx)
}
