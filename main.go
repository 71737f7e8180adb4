package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"whspr/internal/cli"
	"whspr/internal/config"
	"whspr/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	app := NewApp(cfg, os.Stdout, os.Stderr, log)
	if err != nil {
		app.Report(fmt.Errorf("loading config: %w", err))
		return 1
	}

	deps := &cli.Dependencies{
		Config:  cfg,
		Log:     log,
		Level:   level,
		Dictate: app.Dictate,
	}
	err = cli.NewRootCmd(deps).ExecuteContext(ctx)
	if err != nil && !errors.Is(err, domain.ErrUserCancelled) {
		app.Report(err)
	}
	return exitCode(err)
}

// exitCode is 0 on success or user cancellation and 1 otherwise.
func exitCode(err error) int {
	if err == nil || errors.Is(err, domain.ErrUserCancelled) {
		return 0
	}
	return 1
}
