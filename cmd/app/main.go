package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ndax_bridge/internal/app"
	"ndax_bridge/internal/infra"
)

func main() {
	configPath := flag.String("config", infra.DefaultConfigPath, "path to config.yaml")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Exchange connection (fatal when unreachable)
	if err := bootstrap.Connect(ctx); err != nil {
		slog.Error("Exchange connection failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 4. Components run until the shutdown cascade completes
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("Bridge stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Shut down gracefully")
}
