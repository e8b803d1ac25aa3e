// Package populate ties the configuration source to the KV store: it imports
// the desired state and reconciles the KV path against it.
package populate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/schaermu/kvsyncd/internal/aggregate"
	"github.com/schaermu/kvsyncd/internal/metrics"
	"github.com/schaermu/kvsyncd/internal/reconcile"
)

// Importer produces the desired state from a configuration source
type Importer interface {
	Import(ctx context.Context) (*aggregate.DesiredState, error)
}

// FilesImporter reads a static directory. The target is resolved under root;
// an empty target selects single-source mode.
type FilesImporter struct {
	aggregator *aggregate.Aggregator
	rootPath   string
	target     string
}

// NewFilesImporter creates an importer for a local directory
func NewFilesImporter(a *aggregate.Aggregator, rootPath, target string) *FilesImporter {
	return &FilesImporter{aggregator: a, rootPath: rootPath, target: target}
}

func (i *FilesImporter) Import(_ context.Context) (*aggregate.DesiredState, error) {
	return i.aggregator.Aggregate(i.rootPath, Resolve(i.rootPath, i.target))
}

// Workspace locates the working copy on disk
type Workspace interface {
	Dir() (string, error)
}

// GitImporter reads the working copy of a repository. Both root and target
// are resolved relative to the working copy.
type GitImporter struct {
	aggregator *aggregate.Aggregator
	workspace  Workspace
	rootPath   string
	target     string
	logger     *slog.Logger
}

// NewGitImporter creates an importer for a repository working copy
func NewGitImporter(a *aggregate.Aggregator, ws Workspace, rootPath, target string, logger *slog.Logger) *GitImporter {
	return &GitImporter{
		aggregator: a,
		workspace:  ws,
		rootPath:   rootPath,
		target:     target,
		logger:     logger,
	}
}

func (i *GitImporter) Import(_ context.Context) (*aggregate.DesiredState, error) {
	dir, err := i.workspace.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate working copy: %w", err)
	}
	i.logger.Debug("reading configuration from working copy", "dir", dir)

	root := Resolve(dir, i.rootPath)
	return i.aggregator.Aggregate(root, Resolve(root, i.target))
}

// Resolve joins rel onto base. An empty rel yields base and an absolute rel
// is used as is.
func Resolve(base, rel string) string {
	if rel == "" {
		return base
	}
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(base, rel)
}

// Reconciler converges the store under a prefix
type Reconciler interface {
	Reconcile(ctx context.Context, prefix string, desired *aggregate.DesiredState) (reconcile.Result, error)
}

// Service runs one populate pass: import, then reconcile under the KV path
type Service struct {
	importer   Importer
	reconciler Reconciler
	kvPath     string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a populate service. kvPath is the key prefix including
// its trailing slash. m may be nil.
func NewService(importer Importer, reconciler Reconciler, kvPath string, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		importer:   importer,
		reconciler: reconciler,
		kvPath:     kvPath,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Populate imports the desired state and reconciles it into the store
func (s *Service) Populate(ctx context.Context) (reconcile.Result, error) {
	s.logger.Info("populating kv store", "path", s.kvPath)

	desired, err := s.importer.Import(ctx)
	if err != nil {
		s.metrics.ObservePopulate(metrics.ResultFailure, 0, 0, s.now())
		return reconcile.Result{}, fmt.Errorf("failed to import configuration: %w", err)
	}
	s.logger.Debug("configuration imported", "documents", desired.Len())

	res, err := s.reconciler.Reconcile(ctx, s.kvPath, desired)
	if err != nil {
		s.metrics.ObservePopulate(metrics.ResultFailure, 0, 0, s.now())
		return res, fmt.Errorf("failed to reconcile %s: %w", s.kvPath, err)
	}

	switch {
	case res.DryRun:
		s.metrics.ObservePopulate(metrics.ResultDryRun, 0, 0, s.now())
	case res.Partial:
		s.metrics.ObservePopulate(metrics.ResultPartial, res.Sets, res.Deletes, s.now())
	default:
		s.metrics.ObservePopulate(metrics.ResultSuccess, res.Sets, res.Deletes, s.now())
	}

	s.logger.Info("populate completed",
		"sets", res.Sets,
		"deletes", res.Deletes,
		"succeeded", res.Succeeded,
		"failed", res.Failed)
	return res, nil
}
