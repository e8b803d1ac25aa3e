package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/schaermu/kvsyncd/internal/activation"
	"github.com/schaermu/kvsyncd/internal/config"
	"github.com/schaermu/kvsyncd/internal/metrics"
	"github.com/schaermu/kvsyncd/internal/populate"
	"github.com/schaermu/kvsyncd/internal/pull"
	"github.com/schaermu/kvsyncd/internal/server"
	"github.com/schaermu/kvsyncd/internal/summary"
	"github.com/schaermu/kvsyncd/internal/watch"
	"github.com/schaermu/kvsyncd/internal/webhook"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create consul client: %w", err)
	}

	a, err := newApp(ctx, cfg, store, m, false, logger)
	if err != nil {
		return err
	}
	defer a.close()

	runner := populate.NewRunner(a.service, logger)

	listeners, err := activation.Listeners()
	if err != nil {
		return fmt.Errorf("failed to get activated sockets: %w", err)
	}
	if len(listeners) > 0 {
		logger.Info("using systemd socket activation", "listeners", len(listeners))
	}

	g, gctx := errgroup.WithContext(ctx)

	var gitSurface *server.Git
	switch cfg.Source {
	case config.SourceGit:
		var job *pull.Job
		gitSurface, job, err = startGit(gctx, cfg, a, runner, m, logger)
		if err != nil {
			return err
		}
		defer job.Stop()
	default:
		logger.Info("performing initial populate")
		runner.Run(gctx)
		if cfg.Files.Watch {
			dirs := []string{cfg.Files.RootPath}
			if cfg.Files.Target != "" {
				dirs = append(dirs, populate.Resolve(cfg.Files.RootPath, cfg.Files.Target))
			}
			w := watch.New(dirs, watch.DefaultDelay, func() { runner.Run(gctx) }, logger)
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	srv := server.New(cfg.Serve.ListenAddr, listeners, gitSurface, reg, logger)
	g.Go(func() error { return srv.Run(gctx) })

	return g.Wait()
}

// startGit runs the startup pull and initial populate, starts scheduled
// pulls when enabled and returns the components behind the /git endpoints.
func startGit(ctx context.Context, cfg *config.Config, a *app, runner *populate.Runner, m *metrics.Metrics, logger *slog.Logger) (*server.Git, *pull.Job, error) {
	adapter, err := webhook.AdapterFor(cfg.Git.Webhook.Type)
	if err != nil {
		return nil, nil, err
	}
	secret, err := cfg.WebhookSecret()
	if err != nil {
		return nil, nil, err
	}

	repository, err := a.provider.Repository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open repository: %w", err)
	}
	repository.OnIndexChange(func() { runner.Run(ctx) })

	puller := pull.NewPuller(repository, m, logger)
	puller.Pull(ctx, pull.TriggerStartup)

	logger.Info("performing initial populate")
	runner.Run(ctx)

	job := pull.NewJob(puller, cfg.Git.Poll.Interval.Std(), logger)
	if cfg.Git.Poll.Enabled {
		job.Start()
	}

	hook := webhook.NewHandler(adapter, secret, cfg.Git.Branch, puller, m, logger)

	summaries := summary.NewProvider(summary.Options{
		URL:    cfg.Git.URL,
		Branch: cfg.Git.Branch,
		Files: summary.Files{
			RootPath: cfg.Files.RootPath,
			Target:   cfg.Files.Target,
			Format:   string(cfg.Files.Format),
		},
	}, a.provider, repository, puller, job, logger)

	return &server.Git{
		Summary: summaries,
		Poller:  job,
		Puller:  puller,
		Webhook: hook,
	}, job, nil
}
