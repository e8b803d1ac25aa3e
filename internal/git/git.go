// Package git manages a local working copy of a remote repository by shelling
// out to the git command.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by operations on a closed repository
var ErrClosed = errors.New("repository is closed")

// Auth holds the credentials used to reach the remote
type Auth struct {
	SSHKeyFile     string
	HTTPSTokenFile string
	Username       string
	PasswordFile   string
}

// Commit describes the HEAD commit of a working copy
type Commit struct {
	ID         string
	ShortID    string
	Message    string
	AuthorTime time.Time
}

// ShellClient clones repositories using the git command
type ShellClient struct {
	auth   Auth
	logger *slog.Logger
}

// NewShellClient creates a new git client that uses the git command
func NewShellClient(auth Auth, logger *slog.Logger) *ShellClient {
	return &ShellClient{
		auth:   auth,
		logger: logger,
	}
}

// Clone clones url at branch into destDir. The parent of destDir is created
// when missing.
func (c *ShellClient) Clone(ctx context.Context, url, branch, destDir string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	c.logger.Debug("cloning repository", "branch", branch, "dest", destDir)
	cmd := exec.CommandContext(ctx, "git", "clone", "--branch", branch, "--origin", "origin", url, destDir)
	if err := c.configureAuth(cmd, url); err != nil {
		return nil, err
	}
	if err := runCommand(cmd); err != nil {
		return nil, fmt.Errorf("git clone failed: %w", err)
	}

	return &Repository{
		client: c,
		url:    url,
		branch: branch,
		dir:    destDir,
	}, nil
}

// configureAuth sets up authentication for git operations
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")

	// SSH authentication
	if c.auth.SSHKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.auth.SSHKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil
	}

	username, password, err := c.httpCredentials()
	if err != nil {
		return err
	}
	if password == "" {
		return nil
	}

	// Credentials are passed through the environment to a helper so they
	// never appear in argv or in a shell expression.
	cmd.Env = append(cmd.Env, "KVSYNCD_GIT_USERNAME="+username, "KVSYNCD_GIT_PASSWORD="+password)
	cmd.Args = insertGitFlags(cmd.Args,
		"-c", `credential.helper=!f() { echo "username=$KVSYNCD_GIT_USERNAME"; echo "password=$KVSYNCD_GIT_PASSWORD"; }; f`,
	)
	return nil
}

// httpCredentials resolves the username and password for HTTP(S) remotes.
// A token takes precedence over a password.
func (c *ShellClient) httpCredentials() (string, string, error) {
	if c.auth.HTTPSTokenFile != "" {
		token, err := readSecret(c.auth.HTTPSTokenFile)
		if err != nil {
			return "", "", fmt.Errorf("failed to read HTTPS token file: %w", err)
		}
		username := c.auth.Username
		if username == "" {
			username = "x-access-token"
		}
		return username, token, nil
	}

	if c.auth.PasswordFile != "" {
		password, err := readSecret(c.auth.PasswordFile)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password file: %w", err)
		}
		return c.auth.Username, password, nil
	}

	return "", "", nil
}

func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Repository is a cloned working copy
type Repository struct {
	client *ShellClient
	url    string
	branch string
	dir    string

	mu        sync.Mutex // guards listeners and closed
	listeners []func()
	closed    bool
}

// Dir returns the working copy directory
func (r *Repository) Dir() string {
	return r.dir
}

// OnIndexChange registers fn to be called after a pull moved HEAD
func (r *Repository) OnIndexChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Pull fast-forwards the tracked branch from origin. Listeners run on the
// caller's goroutine once the pull completed and HEAD changed.
func (r *Repository) Pull(ctx context.Context) error {
	if r.isClosed() {
		return ErrClosed
	}

	before, err := r.revParse(ctx, "HEAD")
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "git", "-C", r.dir, "pull", "--ff-only", "origin", r.branch)
	if err := r.client.configureAuth(cmd, r.url); err != nil {
		return err
	}
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("git pull failed: %w", err)
	}

	after, err := r.revParse(ctx, "HEAD")
	if err != nil {
		return err
	}
	if before == after {
		r.client.logger.Debug("repository already up to date", "commit", after)
		return nil
	}

	r.client.logger.Info("repository updated", "from", shortID(before), "to", shortID(after))
	r.mu.Lock()
	listeners := append([]func(){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Head reads the HEAD commit of the working copy
func (r *Repository) Head(ctx context.Context) (Commit, error) {
	if r.isClosed() {
		return Commit{}, ErrClosed
	}

	cmd := exec.CommandContext(ctx, "git", "-C", r.dir, "log", "-1", "--format=%H%x1f%h%x1f%s%x1f%aI")
	output, err := cmd.Output()
	if err != nil {
		return Commit{}, fmt.Errorf("git log failed: %w", err)
	}

	parts := strings.Split(strings.TrimRight(string(output), "\n"), "\x1f")
	if len(parts) != 4 {
		return Commit{}, fmt.Errorf("unexpected git log output: %q", output)
	}

	authored, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return Commit{}, fmt.Errorf("failed to parse commit time: %w", err)
	}

	return Commit{
		ID:         parts[0],
		ShortID:    shortID(parts[0]),
		Message:    parts[2],
		AuthorTime: authored,
	}, nil
}

// IsClean reports whether the working tree has no uncommitted changes
func (r *Repository) IsClean(ctx context.Context) (bool, error) {
	if r.isClosed() {
		return false, ErrClosed
	}

	cmd := exec.CommandContext(ctx, "git", "-C", r.dir, "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return strings.TrimSpace(string(output)) == "", nil
}

// Close releases the repository. Listeners are dropped and further
// operations fail with ErrClosed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.listeners = nil
	return nil
}

func (r *Repository) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Repository) revParse(ctx context.Context, rev string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", r.dir, "rev-parse", rev)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "pull").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with its output on failure
func runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
