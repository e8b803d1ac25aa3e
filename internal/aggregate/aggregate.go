// Package aggregate merges configuration files from a root directory and an
// override directory into the desired state written to the KV store.
package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schaermu/kvsyncd/internal/codec"
)

// ErrConfiguration is returned when the source directories are missing or hold
// no files accepted by the active codec.
var ErrConfiguration = errors.New("invalid source configuration")

// Aggregator reads configuration documents with a single codec
type Aggregator struct {
	codec  codec.Codec
	logger *slog.Logger
}

// New creates an Aggregator for the given codec
func New(c codec.Codec, logger *slog.Logger) *Aggregator {
	return &Aggregator{codec: c, logger: logger}
}

// document is one decoded source file
type document struct {
	name string
	dir  string // directory of the file merged last
	tree *codec.Tree
}

// Aggregate reads every accepted file directly under rootPath and, unless
// targetPath equals rootPath, overlays the files of targetPath onto the root
// documents sharing their identity, the filename without extension. Files of
// one directory with the same identity (app.yaml, app.yml) are merged in name
// order. Each resulting document is encoded with the active codec and stored
// under its identity.
func (a *Aggregator) Aggregate(rootPath, targetPath string) (*DesiredState, error) {
	if err := requireDir(rootPath, "root"); err != nil {
		return nil, err
	}
	if err := requireDir(targetPath, "target"); err != nil {
		return nil, err
	}

	rootFiles, err := a.listFiles(rootPath)
	if err != nil {
		return nil, err
	}
	if len(rootFiles) == 0 {
		return nil, fmt.Errorf("%w: no %s files found in root directory %s", ErrConfiguration, a.codec.Format(), rootPath)
	}
	a.logger.Debug("discovered root files", "path", rootPath, "count", len(rootFiles))

	docs := make([]*document, 0, len(rootFiles))
	byIdentity := make(map[string]*document, len(rootFiles))
	add := func(path string, tree *codec.Tree) {
		name, dir := filepath.Base(path), filepath.Dir(path)
		id := identity(name)
		doc, ok := byIdentity[id]
		if !ok {
			doc = &document{name: name, dir: dir, tree: tree}
			docs = append(docs, doc)
			byIdentity[id] = doc
			return
		}
		if doc.dir == dir {
			a.logger.Warn("files in one directory share an identity, merging in name order",
				"identity", id, "dir", dir, "file", name)
		}
		doc.tree = Merge(doc.tree, tree)
		doc.dir = dir
	}

	for _, path := range rootFiles {
		tree, err := a.readFile(path)
		if err != nil {
			return nil, err
		}
		if tree == nil {
			continue
		}
		add(path, tree)
	}

	if filepath.Clean(targetPath) != filepath.Clean(rootPath) {
		targetFiles, err := a.listFiles(targetPath)
		if err != nil {
			return nil, err
		}
		if len(targetFiles) == 0 {
			return nil, fmt.Errorf("%w: no %s files found in target directory %s", ErrConfiguration, a.codec.Format(), targetPath)
		}
		a.logger.Debug("discovered target files", "path", targetPath, "count", len(targetFiles))

		for _, path := range targetFiles {
			tree, err := a.readFile(path)
			if err != nil {
				return nil, err
			}
			if tree == nil {
				continue
			}
			add(path, tree)
		}
	}

	state := NewDesiredState()
	for _, doc := range docs {
		id := identity(doc.name)
		payload, err := a.codec.Encode(doc.tree)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", doc.name, err)
		}
		if payload == "" {
			a.logger.Info("omitting empty document", "identity", id)
			continue
		}
		state.Set(id, payload)
	}

	return state, nil
}

// listFiles returns the regular files directly under dir that the codec
// accepts, sorted by name. Hidden files are skipped.
func (a *Aggregator) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %v", ErrConfiguration, dir, err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !a.codec.Accepts(filepath.Ext(name)) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}

	sort.Strings(files)
	return files, nil
}

// readFile decodes one file. Unreadable files and files without content yield
// a nil tree and a warning; malformed files are returned as errors.
func (a *Aggregator) readFile(path string) (*codec.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return nil, nil
	}

	tree, err := a.codec.Decode(data)
	if err != nil {
		var decodeErr *codec.DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Path = path
			return nil, decodeErr
		}
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if tree == nil {
		a.logger.Warn("skipping file without content", "path", path)
		return nil, nil
	}
	return tree, nil
}

// identity is a filename without its extension
func identity(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func requireDir(path, role string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s directory does not exist: %s", ErrConfiguration, role, path)
		}
		return fmt.Errorf("%w: failed to stat %s directory %s: %v", ErrConfiguration, role, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s path is not a directory: %s", ErrConfiguration, role, path)
	}
	return nil
}
