package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runPopulate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create consul client: %w", err)
	}

	a, err := newApp(ctx, cfg, store, nil, dryRun, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("starting populate operation", "source", cfg.Source, "dry_run", dryRun)
	res, err := a.service.Populate(ctx)
	if err != nil {
		logger.Error("populate failed", "error", err)
		return err
	}
	if res.Partial {
		return fmt.Errorf("store applied %d of %d operations", res.Succeeded, res.Submitted)
	}

	return nil
}
