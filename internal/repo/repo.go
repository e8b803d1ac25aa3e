// Package repo owns the lifecycle of the local working copy of the
// configuration repository.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schaermu/kvsyncd/internal/git"
)

// Cloner clones a remote repository into a local directory
type Cloner interface {
	Clone(ctx context.Context, url, branch, destDir string) (*git.Repository, error)
}

// Options describes the repository to provide
type Options struct {
	URL       string
	Branch    string
	LocalPath string
}

// Provider lazily derives the working copy directory and clones the
// repository into it. Both happen at most once per Provider.
type Provider struct {
	opts   Options
	cloner Cloner
	logger *slog.Logger

	dirMu  sync.Mutex // guards dir and tmpDir
	dir    string
	tmpDir string

	repoMu sync.Mutex // guards repo
	repo   *git.Repository
}

// NewProvider creates a provider for the configured repository
func NewProvider(opts Options, cloner Cloner, logger *slog.Logger) *Provider {
	return &Provider{
		opts:   opts,
		cloner: cloner,
		logger: logger,
	}
}

// Dir returns the working copy directory, creating the local path and a
// fresh unique subdirectory on first use. The directory name ends with the
// repository's humanish name. A failed attempt is not memoized.
func (p *Provider) Dir() (string, error) {
	p.dirMu.Lock()
	defer p.dirMu.Unlock()

	if p.dir != "" {
		return p.dir, nil
	}

	name, err := HumanishName(p.opts.URL)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.opts.LocalPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create local path: %w", err)
	}
	tmpDir, err := os.MkdirTemp(p.opts.LocalPath, "kvsyncd-")
	if err != nil {
		return "", fmt.Errorf("failed to create repository directory: %w", err)
	}

	p.tmpDir = tmpDir
	p.dir = filepath.Join(tmpDir, name)
	p.logger.Debug("repository directory assigned", "path", p.dir)
	return p.dir, nil
}

// Repository clones the repository on first use and returns the same handle
// to every caller afterwards. Concurrent first callers trigger one clone.
func (p *Provider) Repository(ctx context.Context) (*git.Repository, error) {
	p.repoMu.Lock()
	defer p.repoMu.Unlock()

	if p.repo != nil {
		return p.repo, nil
	}

	dir, err := p.Dir()
	if err != nil {
		return nil, err
	}

	p.logger.Info("cloning repository", "url", p.opts.URL, "branch", p.opts.Branch)
	repo, err := p.cloner.Clone(ctx, p.opts.URL, p.opts.Branch, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository: %w", err)
	}

	p.repo = repo
	return repo, nil
}

// Close disposes the repository handle if one was created
func (p *Provider) Close() error {
	p.repoMu.Lock()
	defer p.repoMu.Unlock()

	if p.repo == nil {
		return nil
	}
	err := p.repo.Close()
	p.repo = nil
	return err
}

// Cleanup removes the temporary directory holding the working copy
func (p *Provider) Cleanup() error {
	p.dirMu.Lock()
	defer p.dirMu.Unlock()

	if p.tmpDir == "" {
		return nil
	}
	p.logger.Info("removing local repository", "path", p.tmpDir)
	if err := os.RemoveAll(p.tmpDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", p.tmpDir, err)
	}
	p.tmpDir = ""
	p.dir = ""
	return nil
}

// HumanishName derives a directory name from a repository URI: the last
// path element with a trailing ".git" removed, or the element before a
// trailing "/.git".
func HumanishName(uri string) (string, error) {
	path := uri
	switch {
	case strings.Contains(uri, "://"):
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("invalid repository uri: %w", err)
		}
		path = u.Path
	case isSCPLike(uri):
		path = uri[strings.Index(uri, ":")+1:]
	}

	elems := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	if len(elems) == 0 {
		return "", errors.New("cannot derive a name from repository uri " + uri)
	}

	name := elems[len(elems)-1]
	if name == ".git" && len(elems) > 1 {
		name = elems[len(elems)-2]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" {
		return "", errors.New("cannot derive a name from repository uri " + uri)
	}
	return name, nil
}

// isSCPLike reports whether uri uses the user@host:path form
func isSCPLike(uri string) bool {
	colon := strings.Index(uri, ":")
	if colon <= 0 {
		return false
	}
	slash := strings.Index(uri, "/")
	return slash < 0 || colon < slash
}
