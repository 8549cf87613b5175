package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/logging"
	"github.com/matheus3301/msgr/internal/relay"
	"github.com/matheus3301/msgr/internal/session"
)

func main() {
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	backendFlag := flag.String("backend", "", "backend base URL (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.Relay.Listen = *listenFlag
	}
	if *backendFlag != "" {
		cfg.Relay.BackendURL = *backendFlag
	}

	logger, err := logging.NewConsole(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	newSource := func(token string) relay.Source {
		c := backend.New(cfg.Relay.BackendURL, cfg.Backend.Timeout.Duration, logger)
		c.SetToken(token)
		return c
	}
	srv := relay.New(newSource, cfg.Relay.PollInterval.Duration, logger.Named("relay"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx, cfg.Relay.Listen); err != nil {
		logger.Error("relay stopped", zap.Error(err))
		os.Exit(1)
	}
}
