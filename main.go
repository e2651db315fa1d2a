package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/soniqfm/soniq/internal/app"
	"github.com/soniqfm/soniq/internal/config"
	"github.com/soniqfm/soniq/internal/state"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "soniq",
	})

	if err := run(logger); err != nil {
		logger.Fatal("startup failed", "err", err)
	}
}

func run(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	stateMgr, err := state.Open()
	if err != nil {
		return err
	}
	defer stateMgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, stateMgr, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("ready", "bridge", cfg.Widget.BridgeURL, "gated", cfg.HasGateConfig())

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}
