package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runRefresh(cmd *cobra.Command, _ []string) error {
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

	report, err := a.orch.RefreshAll(ctx)
	if err != nil {
		return err
	}
	for _, step := range report.Steps {
		logger.Info("step",
			zap.String("name", step.Name),
			zap.String("status", string(step.Status)),
			zap.Int("count", step.Count),
			zap.String("error", step.Error),
		)
	}
	if !report.OK() {
		return fmt.Errorf("refresh incomplete")
	}
	return nil
}
