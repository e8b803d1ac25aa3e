package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/kvsyncd/internal/codec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("KVSYNCD_TEST_BRANCH", "release")

	path := writeConfig(t, `
source: git

consul:
  address: "https://consul.example.com:8501"
  datacenter: dc2
  timeout: 1500

kv:
  prefix: "apps/config"
  version: "1.2.0"

files:
  root_path: "services"
  target: "prod"
  format: JSON

git:
  url: "git@github.com:test/config.git"
  branch: "${KVSYNCD_TEST_BRANCH}"
  clean_up: true
  poll:
    enabled: true
    interval: PT1M30S
  webhook:
    type: bitbucket
    secret: s3cr3t

auth:
  ssh_key_file: "/home/user/.ssh/key"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Source != SourceGit {
		t.Errorf("expected source git, got %s", cfg.Source)
	}
	if cfg.Git.Branch != "release" {
		t.Errorf("expected branch to be expanded from env, got %s", cfg.Git.Branch)
	}
	if cfg.Files.Format != codec.FormatJSON {
		t.Errorf("expected format to be normalized to json, got %s", cfg.Files.Format)
	}
	if cfg.Git.Poll.Interval.Std() != 90*time.Second {
		t.Errorf("expected poll interval 90s, got %s", cfg.Git.Poll.Interval)
	}
	if cfg.Consul.Timeout.Std() != 1500*time.Millisecond {
		t.Errorf("expected timeout 1.5s, got %s", cfg.Consul.Timeout)
	}
	if got := cfg.KVPath(); got != "apps/config/1.2.0/" {
		t.Errorf("expected kv path apps/config/1.2.0/, got %s", got)
	}
	if cfg.Serve.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("expected default listen addr, got %s", cfg.Serve.ListenAddr)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := Load(writeConfig(t, "source: [files")); err == nil {
		t.Error("expected error for malformed yaml")
	}

	_, err := Load(writeConfig(t, "source: files\n"))
	if err == nil || !strings.Contains(err.Error(), "files.root_path") {
		t.Errorf("expected root_path error, got %v", err)
	}

	_, err = Load(writeConfig(t, "files:\n  root_path: /cfg\ngit:\n  poll:\n    interval: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("expected duration error, got %v", err)
	}

	_, err = Load(writeConfig(t, "source: git\ngit:\n  url: https://example.com/cfg.git\n  poll:\n    enabled: false\n    interval: -5m\n"))
	if err == nil || !strings.Contains(err.Error(), "git.poll.interval") {
		t.Errorf("expected poll interval error, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Source != SourceFiles {
		t.Errorf("expected default source files, got %q", cfg.Source)
	}
	if cfg.Consul.Address != "127.0.0.1:8500" {
		t.Errorf("unexpected default consul address %q", cfg.Consul.Address)
	}
	if cfg.KV.Prefix != "config" {
		t.Errorf("unexpected default prefix %q", cfg.KV.Prefix)
	}
	if cfg.Files.Format != codec.FormatYAML {
		t.Errorf("unexpected default format %q", cfg.Files.Format)
	}
	if cfg.Git.Branch != "main" {
		t.Errorf("unexpected default branch %q", cfg.Git.Branch)
	}
	if cfg.Git.LocalPath != os.TempDir() {
		t.Errorf("unexpected default local path %q", cfg.Git.LocalPath)
	}
	if cfg.Git.Poll.Interval != DefaultPollInterval {
		t.Errorf("unexpected default poll interval %s", cfg.Git.Poll.Interval)
	}
	if cfg.Git.Webhook.Type != "github" {
		t.Errorf("unexpected default webhook type %q", cfg.Git.Webhook.Type)
	}

	// Explicit values must not be overwritten
	cfg2 := Config{KV: KVConfig{Prefix: "custom"}, Git: GitConfig{Branch: "develop"}}
	cfg2.applyDefaults()
	if cfg2.KV.Prefix != "custom" || cfg2.Git.Branch != "develop" {
		t.Errorf("applyDefaults() overwrote explicit values: %+v", cfg2)
	}
}

func filesConfig() Config {
	cfg := Config{Source: SourceFiles, Files: FilesConfig{RootPath: "/etc/kvsyncd/config", Target: "dev"}}
	cfg.applyDefaults()
	return cfg
}

func gitConfig() Config {
	cfg := Config{Source: SourceGit, Git: GitConfig{URL: "https://github.com/test/config.git"}}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func() Config
		wantErr string
	}{
		{name: "valid files config", cfg: filesConfig},
		{name: "valid git config", cfg: gitConfig},
		{
			name:    "unknown source",
			cfg:     func() Config { c := filesConfig(); c.Source = "s3"; return c },
			wantErr: "source must be one of",
		},
		{
			name:    "unknown format",
			cfg:     func() Config { c := filesConfig(); c.Files.Format = "toml"; return c },
			wantErr: "files.format",
		},
		{
			name:    "prefix with trailing slash",
			cfg:     func() Config { c := filesConfig(); c.KV.Prefix = "config/"; return c },
			wantErr: "kv.prefix",
		},
		{
			name: "nested prefix",
			cfg:  func() Config { c := filesConfig(); c.KV.Prefix = "team-a/app_1/config"; return c },
		},
		{
			name:    "version with slash",
			cfg:     func() Config { c := filesConfig(); c.KV.Version = "1/2"; return c },
			wantErr: "kv.version",
		},
		{
			name: "dotted version",
			cfg:  func() Config { c := filesConfig(); c.KV.Version = "1.2.3-rc.1"; return c },
		},
		{
			name:    "missing root path",
			cfg:     func() Config { c := filesConfig(); c.Files.RootPath = ""; return c },
			wantErr: "files.root_path is required",
		},
		{
			name: "consul token and token file",
			cfg: func() Config {
				c := filesConfig()
				c.Consul.Token, c.Consul.TokenFile = "t", "/token"
				return c
			},
			wantErr: "consul",
		},
		{
			name:    "missing git url",
			cfg:     func() Config { c := gitConfig(); c.Git.URL = ""; return c },
			wantErr: "git.url is required",
		},
		{
			name:    "absolute root path in git mode",
			cfg:     func() Config { c := gitConfig(); c.Files.RootPath = "/abs"; return c },
			wantErr: "relative",
		},
		{
			name:    "watch in git mode",
			cfg:     func() Config { c := gitConfig(); c.Files.Watch = true; return c },
			wantErr: "files.watch",
		},
		{
			name: "negative poll interval",
			cfg: func() Config {
				c := gitConfig()
				c.Git.Poll = PollConfig{Enabled: true, Interval: -1}
				return c
			},
			wantErr: "git.poll.interval",
		},
		{
			name: "negative poll interval with polling disabled",
			cfg: func() Config {
				c := gitConfig()
				c.Git.Poll = PollConfig{Enabled: false, Interval: Duration(-5 * time.Minute)}
				return c
			},
			wantErr: "git.poll.interval",
		},
		{
			name:    "unknown webhook type",
			cfg:     func() Config { c := gitConfig(); c.Git.Webhook.Type = "gitlab"; return c },
			wantErr: "git.webhook.type",
		},
		{
			name: "webhook secret and secret file",
			cfg: func() Config {
				c := gitConfig()
				c.Git.Webhook.Secret, c.Git.Webhook.SecretFile = "s", "/secret"
				return c
			},
			wantErr: "git.webhook",
		},
		{
			name: "both ssh key and https token set",
			cfg: func() Config {
				c := gitConfig()
				c.Auth = AuthConfig{SSHKeyFile: "/key", HTTPSTokenFile: "/token"}
				return c
			},
			wantErr: "only one of",
		},
		{
			name:    "ssh key with https url",
			cfg:     func() Config { c := gitConfig(); c.Auth.SSHKeyFile = "/key"; return c },
			wantErr: "SSH scheme",
		},
		{
			name: "https token with ssh url",
			cfg: func() Config {
				c := gitConfig()
				c.Git.URL = "git@github.com:test/config.git"
				c.Auth.HTTPSTokenFile = "/token"
				return c
			},
			wantErr: "HTTPS scheme",
		},
		{
			name:    "password without username",
			cfg:     func() Config { c := gitConfig(); c.Auth.PasswordFile = "/password"; return c },
			wantErr: "auth.username",
		},
		{
			name: "username and password",
			cfg: func() Config {
				c := gitConfig()
				c.Auth = AuthConfig{Username: "deploy", PasswordFile: "/password"}
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg()
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestKVPath(t *testing.T) {
	tests := []struct {
		prefix  string
		version string
		want    string
	}{
		{"config", "", "config/"},
		{"config", "1.0", "config/1.0/"},
		{"apps/billing", "v2", "apps/billing/v2/"},
	}

	for _, tt := range tests {
		cfg := Config{KV: KVConfig{Prefix: tt.prefix, Version: tt.version}}
		if got := cfg.KVPath(); got != tt.want {
			t.Errorf("KVPath() = %s, want %s", got, tt.want)
		}
	}
}

func TestSecrets(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Consul: ConsulConfig{Token: "inline"}}
	if got, _ := cfg.ConsulToken(); got != "inline" {
		t.Errorf("ConsulToken() = %q, want inline", got)
	}
	cfg.Consul = ConsulConfig{TokenFile: tokenFile}
	if got, _ := cfg.ConsulToken(); got != "from-file" {
		t.Errorf("ConsulToken() = %q, want from-file", got)
	}

	cfg.Git.Webhook = WebhookConfig{SecretFile: tokenFile}
	if got, _ := cfg.WebhookSecret(); string(got) != "from-file" {
		t.Errorf("WebhookSecret() = %q, want from-file", got)
	}
	cfg.Git.Webhook = WebhookConfig{SecretFile: filepath.Join(dir, "missing")}
	if _, err := cfg.WebhookSecret(); err == nil {
		t.Error("expected error for missing secret file")
	}
	cfg.Git.Webhook = WebhookConfig{}
	if got, err := cfg.WebhookSecret(); err != nil || len(got) != 0 {
		t.Errorf("expected empty secret, got %q, %v", got, err)
	}
}

func TestAuthMethod(t *testing.T) {
	tests := []struct {
		name string
		auth AuthConfig
		want string
	}{
		{name: "ssh key set", auth: AuthConfig{SSHKeyFile: "/key"}, want: "ssh"},
		{name: "https token set", auth: AuthConfig{HTTPSTokenFile: "/token"}, want: "https-token"},
		{name: "password set", auth: AuthConfig{Username: "u", PasswordFile: "/pw"}, want: "https-password"},
		{name: "nothing set", auth: AuthConfig{}, want: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Auth: tt.auth}
			if got := cfg.AuthMethod(); got != tt.want {
				t.Errorf("AuthMethod() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsSSHAndHTTPS(t *testing.T) {
	tests := []struct {
		url       string
		wantSSH   bool
		wantHTTPS bool
	}{
		{"git@github.com:org/repo.git", true, false},
		{"ssh://git@github.com/org/repo.git", true, false},
		{"https://github.com/org/repo.git", false, true},
		{"/srv/git/repo.git", false, false},
	}

	for _, tt := range tests {
		cfg := Config{Git: GitConfig{URL: tt.url}}
		if cfg.IsSSH() != tt.wantSSH || cfg.IsHTTPS() != tt.wantHTTPS {
			t.Errorf("%s: IsSSH=%v IsHTTPS=%v, want %v %v", tt.url, cfg.IsSSH(), cfg.IsHTTPS(), tt.wantSSH, tt.wantHTTPS)
		}
	}
}
