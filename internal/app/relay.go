package app

import (
	"context"
	"os/signal"
	"syscall"

	"funding-intel/internal/relay"
)

// Relay serves the authenticated forwarding proxy until interrupted.
func (a *App) Relay(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := a.Config.Relay
	server, err := relay.NewServer(relay.Options{
		Listen:       cfg.Listen,
		Key:          cfg.Key,
		Upstream:     cfg.Upstream,
		AllowedPaths: cfg.AllowedPaths,
	}, a.Logger)
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
