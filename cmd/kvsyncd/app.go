package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schaermu/kvsyncd/internal/aggregate"
	"github.com/schaermu/kvsyncd/internal/codec"
	"github.com/schaermu/kvsyncd/internal/config"
	"github.com/schaermu/kvsyncd/internal/git"
	"github.com/schaermu/kvsyncd/internal/kv"
	"github.com/schaermu/kvsyncd/internal/metrics"
	"github.com/schaermu/kvsyncd/internal/populate"
	"github.com/schaermu/kvsyncd/internal/reconcile"
	"github.com/schaermu/kvsyncd/internal/repo"
)

// app holds the components shared by the populate and serve commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    kv.Store
	provider *repo.Provider // nil in files mode
	service  *populate.Service
}

func newStore(cfg *config.Config, logger *slog.Logger) (*kv.ConsulStore, error) {
	token, err := cfg.ConsulToken()
	if err != nil {
		return nil, err
	}
	return kv.NewConsulStore(kv.ConsulOptions{
		Address:    cfg.Consul.Address,
		Token:      token,
		Datacenter: cfg.Consul.Datacenter,
		Timeout:    cfg.Consul.Timeout.Std(),
	}, logger)
}

func newProvider(cfg *config.Config, logger *slog.Logger) *repo.Provider {
	client := git.NewShellClient(git.Auth{
		SSHKeyFile:     cfg.Auth.SSHKeyFile,
		HTTPSTokenFile: cfg.Auth.HTTPSTokenFile,
		Username:       cfg.Auth.Username,
		PasswordFile:   cfg.Auth.PasswordFile,
	}, logger)

	return repo.NewProvider(repo.Options{
		URL:       cfg.Git.URL,
		Branch:    cfg.Git.Branch,
		LocalPath: cfg.Git.LocalPath,
	}, client, logger)
}

// newApp wires the import and reconcile pipeline for the configured source.
// In git mode the repository is cloned before newApp returns.
func newApp(ctx context.Context, cfg *config.Config, store kv.Store, m *metrics.Metrics, dryRun bool, logger *slog.Logger) (*app, error) {
	c, err := codec.ForFormat(cfg.Files.Format)
	if err != nil {
		return nil, err
	}
	aggregator := aggregate.New(c, logger)

	a := &app{cfg: cfg, logger: logger, store: store}

	var importer populate.Importer
	switch cfg.Source {
	case config.SourceGit:
		a.provider = newProvider(cfg, logger)
		if _, err := a.provider.Repository(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to clone repository: %w", err)
		}
		importer = populate.NewGitImporter(aggregator, a.provider, cfg.Files.RootPath, cfg.Files.Target, logger)
	default:
		importer = populate.NewFilesImporter(aggregator, cfg.Files.RootPath, cfg.Files.Target)
	}

	engine := reconcile.NewEngine(store, logger, dryRun)
	a.service = populate.NewService(importer, engine, cfg.KVPath(), m, logger)
	return a, nil
}

// close releases the working copy and removes it when git.clean_up is set
func (a *app) close() {
	if a.provider == nil {
		return
	}
	if err := a.provider.Close(); err != nil {
		a.logger.Warn("failed to close repository", "error", err)
	}
	if a.cfg.Git.CleanUp {
		if err := a.provider.Cleanup(); err != nil {
			a.logger.Warn("failed to remove working copy", "error", err)
		}
	}
}
