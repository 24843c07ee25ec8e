package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"userdir/internal/platform/config"
	"userdir/internal/platform/logger"
)

// main loads configuration, installs signal handling and hands over to run.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "userdir: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("userdir stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("userdir stopped")
}
