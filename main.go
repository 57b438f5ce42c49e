// entry point of the application
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"clipd/internal/config"
	"clipd/internal/depmanager"
	"clipd/internal/engine"
	httprouter "clipd/internal/infrastructure/delivery/http"
	"clipd/internal/observability"
	"clipd/internal/orchestrator"
	"clipd/internal/store"
	httpserver "clipd/pkg/http/server"
	"clipd/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	metrics := observability.New()

	depMgr := depmanager.New(log, cfg)

	log.InfoContext(ctx, "checking if yt-dlp and ffmpeg are installed. it may take some time...")

	if err := depMgr.Start(ctx); err != nil {
		log.ErrorContext(ctx, "dependency manager start", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	eng := engine.NewYTdlp(log, cfg, depMgr, metrics)

	storer, err := store.New(log, cfg.Store.File)
	if err != nil {
		log.ErrorContext(ctx, "store new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	orch := orchestrator.New(log, cfg, eng, storer, metrics)

	router := httprouter.New(log, orch, depMgr.Ready, metrics)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	orch.Start(ctx)

	log.InfoContext(ctx, "clipd started", slog.String("port", cfg.HTTP.Port))

	select {
	case <-ctx.Done():
	case err := <-httpSrv.Notify():
		log.ErrorContext(ctx, "http server", slog.Any("error", err))
	}

	orch.Close()

	if err := httpSrv.Shutdown(); err != nil {
		log.Error(err.Error())
	}

	log.InfoContext(ctx, "clipd shut down gracefully")
}
