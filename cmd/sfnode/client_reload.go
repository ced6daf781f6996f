package main

import (
	"log/slog"
	"sync/atomic"

	"github.com/blueberrycongee/sfnodes"
	"github.com/blueberrycongee/sfnodes/internal/api"
	"github.com/blueberrycongee/sfnodes/internal/config"
)

// clientReloader rebuilds the client after a config change and swaps it in.
type clientReloader struct {
	logger     *slog.Logger
	swapper    *api.ClientSwapper
	build      func(*config.Config) (*sfnodes.Client, error)
	inProgress atomic.Bool
}

func newClientReloader(logger *slog.Logger, swapper *api.ClientSwapper, build func(*config.Config) (*sfnodes.Client, error)) *clientReloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &clientReloader{
		logger:  logger,
		swapper: swapper,
		build:   build,
	}
}

// Reload is registered as a config.Manager OnChange callback. A failed build
// keeps the current client.
func (r *clientReloader) Reload(cfg *config.Config) {
	if !r.inProgress.CompareAndSwap(false, true) {
		r.logger.Warn("client reload already in progress")
		return
	}
	defer r.inProgress.Store(false)

	next, err := r.build(cfg)
	if err != nil {
		r.logger.Error("failed to rebuild client", "error", err)
		return
	}
	if next == nil {
		r.logger.Error("failed to rebuild client", "error", "nil client")
		return
	}

	r.swapper.Swap(next)

	r.logger.Info("client reloaded",
		"base_url", cfg.Credentials.Normalized().BaseURL,
		"continue_on_fail", cfg.Execution.ContinueOnFail,
	)
}
