package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()
	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	logger := app.Logger

	logger.Info("starting campkit server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter,
		"blob_adapter", cfg.Blob.Adapter)

	srv := app.Server
	errc := make(chan error, 2)

	go func() {
		logger.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("api server: %w", err)
		}
	}()

	if ms := app.MetricsServer.Server; ms != nil {
		go func() {
			logger.Info("metrics listening", "address", ms.Addr, "path", cfg.Metrics.Path)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String(), "timeout", cfg.Server.ShutdownTimeout)
	case err := <-errc:
		logger.Error("server failed", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
		exitCode = 1
	}
	if ms := app.MetricsServer.Server; ms != nil {
		_ = ms.Shutdown(shutdownCtx)
	}
	cancel()
	// drains async events, proof retries, and webhooks before closing storage
	cleanup()

	logger.Info("server stopped")
	os.Exit(exitCode)
}
