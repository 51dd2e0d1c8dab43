package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"farmScope/internal/api"
	"farmScope/internal/observability"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.RefreshInterval > 0 {
		logger.Info("background refresh enabled", zap.Duration("interval", cfg.RefreshInterval))
		go a.orch.Run(ctx, cfg.RefreshInterval)
	}

	server := api.NewServer(a.cols, a.orch, observability.Handler(a.registry), logger,
		api.WithRefreshTimeout(cfg.LeaseTTL),
	)
	return server.ListenAndServe(ctx, cfg.Listen)
}
