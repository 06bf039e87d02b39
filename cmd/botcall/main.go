package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/botcall/internal/app"
	"github.com/ent0n29/botcall/internal/config"
	applog "github.com/ent0n29/botcall/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		applog.Configure(applog.Config{Service: "botcall"})
		logger := applog.WithComponent("main")
		logger.Fatal().Err(err).Str("event", "config.invalid").Msg("config error")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "botcall"})
	logger := applog.WithComponent("main")

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Str("event", "app.exit").Msg("botcall stopped with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "app.stopped").Msg("shutdown complete")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Error().Err(err).Str("event", "app.cleanup_failed").Msg("cleanup failed")
		}
	}()

	logger.Info().
		Str("event", "app.transport").
		Str("provider", built.Transport.Provider).
		Str("detail", built.Transport.Detail).
		Msg("transport resolved")

	built.Controller.Start(ctx)
	if built.Watch != nil {
		// Without the watcher, edits to the settings file need a restart.
		if err := built.Watch(ctx); err != nil {
			logger.Warn().Err(err).Str("event", "settings.watcher_start_failed").Msg("settings watcher unavailable")
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("event", "http.listening").Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str("event", "app.shutdown").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("event", "http.shutdown_failed").Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
		return nil
	})
	return g.Wait()
}
