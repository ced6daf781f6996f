package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/sfnodes"
	"github.com/blueberrycongee/sfnodes/internal/api"
	"github.com/blueberrycongee/sfnodes/internal/config"
	"github.com/blueberrycongee/sfnodes/internal/observability"
)

// serve runs the HTTP server until ctx is done. Config file changes rebuild
// the client; server settings only apply on restart.
func serve(ctx context.Context, configPath string, logger *observability.Logger, tel *telemetry) int {
	logger.Info("starting sfnode server", "version", sfnodes.Version)

	cfgManager, err := config.NewManager(configPath, logger.Slog())
	if err != nil {
		logger.RedactedError("failed to load configuration", "error", err)
		return 1
	}
	defer cfgManager.Close()
	cfg := cfgManager.Get()

	build := func(c *config.Config) (*sfnodes.Client, error) {
		return buildClient(c, logger, tel)
	}
	client, err := build(cfg)
	if err != nil {
		logger.RedactedError("failed to create client", "error", err)
		return 1
	}
	swapper := api.NewClientSwapper(client)
	defer swapper.Close()

	reloader := newClientReloader(logger.Slog(), swapper, build)
	cfgManager.OnChange(reloader.Reload)
	if err := cfgManager.Watch(ctx); err != nil {
		logger.RedactedWarn("config hot-reload disabled", "path", configPath, "error", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newMux(cfg, swapper, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.RedactedError("server error", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return 1
	}

	logger.Info("server stopped")
	return 0
}

func newMux(cfg *config.Config, swapper *api.ClientSwapper, logger *observability.Logger) http.Handler {
	handler := api.NewHandler(swapper, logger.Slog(), &api.HandlerConfig{MaxBodySize: cfg.Server.MaxRequestBytes})
	mux := handler.Routes()
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}
	return mux
}
