package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/ui"
)

func main() {
	url := flag.String("url", "ws://localhost:8765", "bridge broadcast server")
	instrument := flag.Int64("instrument", 3, "instrument id to chart")
	flag.Parse()

	// The terminal belongs to the dashboard; logs go to stderr only on failure.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dash := ui.NewLevel1Dashboard(*instrument)
	if err := dash.InitWidgets(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	quotes := make(chan domain.BroadcastQuote, 64)
	feedErr := make(chan error, 1)
	go func() { feedErr <- ui.NewFeed(*url).Run(ctx, quotes) }()

	if err := dash.Run(ctx, quotes); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	stop()

	if err := <-feedErr; err != nil {
		fmt.Fprintln(os.Stderr, "feed:", err)
		os.Exit(1)
	}
}
