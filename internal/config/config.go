package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/kvsyncd/internal/codec"
)

// Source selects where the desired configuration is read from
type Source string

const (
	SourceFiles Source = "files"
	SourceGit   Source = "git"
)

// Config represents the complete kvsyncd configuration
type Config struct {
	Source Source       `yaml:"source" validate:"oneof=files git"`
	Consul ConsulConfig `yaml:"consul"`
	KV     KVConfig     `yaml:"kv"`
	Files  FilesConfig  `yaml:"files"`
	Git    GitConfig    `yaml:"git"`
	Auth   AuthConfig   `yaml:"auth"`
	Serve  ServeConfig  `yaml:"serve"`
}

// ConsulConfig configures the KV store connection
type ConsulConfig struct {
	// Address is host:port or a URI; an https:// URI enables TLS
	Address    string   `yaml:"address" validate:"required"`
	Token      string   `yaml:"token"`
	TokenFile  string   `yaml:"token_file"`
	Datacenter string   `yaml:"datacenter"`
	Timeout    Duration `yaml:"timeout"`
}

// KVConfig configures where documents are written
type KVConfig struct {
	Prefix  string `yaml:"prefix" validate:"kvpath"`
	Version string `yaml:"version" validate:"omitempty,kvversion"`
}

// FilesConfig configures the layout of configuration documents. In git mode
// root_path and target are relative to the working copy.
type FilesConfig struct {
	RootPath string       `yaml:"root_path"`
	Target   string       `yaml:"target"`
	Format   codec.Format `yaml:"format" validate:"oneof=yaml json properties"`
	Watch    bool         `yaml:"watch"`
}

// GitConfig configures the Git repository source
type GitConfig struct {
	URL       string        `yaml:"url"`
	Branch    string        `yaml:"branch"`
	LocalPath string        `yaml:"local_path"`
	CleanUp   bool          `yaml:"clean_up"`
	Poll      PollConfig    `yaml:"poll"`
	Webhook   WebhookConfig `yaml:"webhook"`
}

// PollConfig configures scheduled pulls
type PollConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

// WebhookConfig configures push notifications from the git provider
type WebhookConfig struct {
	Type       string `yaml:"type" validate:"oneof=github bitbucket custom"`
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
	Username       string `yaml:"username"`
	PasswordFile   string `yaml:"password_file"`
}

// ServeConfig configures the management server
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

var (
	kvPathPattern    = regexp.MustCompile(`^(?:[\w\-]+/)*[\w\-]+$`)
	kvVersionPattern = regexp.MustCompile(`^[\w\-.]+$`)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("kvpath", func(fl validator.FieldLevel) bool {
		return kvPathPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("kvversion", func(fl validator.FieldLevel) bool {
		return kvVersionPattern.MatchString(fl.Field().String())
	})
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Consul.Address = os.ExpandEnv(c.Consul.Address)
	c.Consul.Token = os.ExpandEnv(c.Consul.Token)
	c.Consul.TokenFile = os.ExpandEnv(c.Consul.TokenFile)
	c.Consul.Datacenter = os.ExpandEnv(c.Consul.Datacenter)
	c.KV.Prefix = os.ExpandEnv(c.KV.Prefix)
	c.KV.Version = os.ExpandEnv(c.KV.Version)
	c.Files.RootPath = os.ExpandEnv(c.Files.RootPath)
	c.Files.Target = os.ExpandEnv(c.Files.Target)
	c.Git.URL = os.ExpandEnv(c.Git.URL)
	c.Git.Branch = os.ExpandEnv(c.Git.Branch)
	c.Git.LocalPath = os.ExpandEnv(c.Git.LocalPath)
	c.Git.Webhook.Secret = os.ExpandEnv(c.Git.Webhook.Secret)
	c.Git.Webhook.SecretFile = os.ExpandEnv(c.Git.Webhook.SecretFile)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
	c.Auth.Username = os.ExpandEnv(c.Auth.Username)
	c.Auth.PasswordFile = os.ExpandEnv(c.Auth.PasswordFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Source == "" {
		c.Source = SourceFiles
	}
	if c.Consul.Address == "" {
		c.Consul.Address = "127.0.0.1:8500"
	}
	if c.KV.Prefix == "" {
		c.KV.Prefix = "config"
	}
	if c.Files.Format == "" {
		c.Files.Format = codec.FormatYAML
	}
	c.Files.Format = codec.Format(strings.ToLower(string(c.Files.Format)))
	if c.Git.Branch == "" {
		c.Git.Branch = "main"
	}
	if c.Git.LocalPath == "" {
		c.Git.LocalPath = os.TempDir()
	}
	if c.Git.Poll.Interval == 0 {
		c.Git.Poll.Interval = DefaultPollInterval
	}
	if c.Git.Webhook.Type == "" {
		c.Git.Webhook.Type = "github"
	}
	c.Git.Webhook.Type = strings.ToLower(c.Git.Webhook.Type)
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = "127.0.0.1:8787"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describeValidation(err)
	}

	if c.Consul.Token != "" && c.Consul.TokenFile != "" {
		return fmt.Errorf("consul: only one of token or token_file may be set")
	}
	if c.Consul.Timeout < 0 {
		return fmt.Errorf("consul.timeout must not be negative")
	}

	switch c.Source {
	case SourceFiles:
		return c.validateFiles()
	case SourceGit:
		return c.validateGit()
	}
	return nil
}

func (c *Config) validateFiles() error {
	if c.Files.RootPath == "" {
		return fmt.Errorf("files.root_path is required when source is files")
	}
	return nil
}

func (c *Config) validateGit() error {
	if c.Git.URL == "" {
		return fmt.Errorf("git.url is required when source is git")
	}
	if filepath.IsAbs(c.Files.RootPath) {
		return fmt.Errorf("files.root_path must be relative to the repository in git mode: %s", c.Files.RootPath)
	}
	if c.Files.Watch {
		return fmt.Errorf("files.watch is only supported when source is files")
	}

	// toggle-poll may start the job later, so disabled polling still needs an interval
	if c.Git.Poll.Interval <= 0 {
		return fmt.Errorf("git.poll.interval must be positive")
	}
	if c.Git.Webhook.Secret != "" && c.Git.Webhook.SecretFile != "" {
		return fmt.Errorf("git.webhook: only one of secret or secret_file may be set")
	}

	// Validate auth: only one auth method may be configured
	methods := 0
	for _, set := range []bool{c.Auth.SSHKeyFile != "", c.Auth.HTTPSTokenFile != "", c.Auth.PasswordFile != ""} {
		if set {
			methods++
		}
	}
	if methods > 1 {
		return fmt.Errorf("auth: only one of ssh_key_file, https_token_file or password_file may be set")
	}
	if c.Auth.PasswordFile != "" && c.Auth.Username == "" {
		return fmt.Errorf("auth.username is required with auth.password_file")
	}

	// Validate auth: when auth is configured, the URL scheme must match
	if c.Auth.SSHKeyFile != "" && !c.IsSSH() {
		return fmt.Errorf("auth.ssh_key_file is set but git.url does not use an SSH scheme (git@ or ssh://)")
	}
	if (c.Auth.HTTPSTokenFile != "" || c.Auth.PasswordFile != "") && !c.IsHTTPS() {
		return fmt.Errorf("auth: https credentials are set but git.url does not use HTTPS scheme")
	}

	return nil
}

// describeValidation turns validator errors into one message naming the
// offending keys by their yaml path
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "kvpath":
			msgs = append(msgs, fmt.Sprintf("%s must be slash-separated words without leading or trailing slash, got %q", field, fe.Value()))
		case "kvversion":
			msgs = append(msgs, fmt.Sprintf("%s may only contain word characters, '-' and '.', got %q", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// KVPath returns the key prefix documents are written under, including the
// trailing slash: "prefix/" or "prefix/version/"
func (c *Config) KVPath() string {
	if c.KV.Version == "" {
		return c.KV.Prefix + "/"
	}
	return c.KV.Prefix + "/" + c.KV.Version + "/"
}

// ConsulToken returns the ACL token, reading token_file when set
func (c *Config) ConsulToken() (string, error) {
	if c.Consul.TokenFile == "" {
		return c.Consul.Token, nil
	}
	return readSecret(c.Consul.TokenFile)
}

// WebhookSecret returns the webhook signing secret, reading secret_file when
// set. An empty secret disables signature verification.
func (c *Config) WebhookSecret() ([]byte, error) {
	if c.Git.Webhook.SecretFile == "" {
		return []byte(c.Git.Webhook.Secret), nil
	}
	s, err := readSecret(c.Git.Webhook.SecretFile)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	// Trim any whitespace/newlines from secret
	return strings.TrimSpace(string(data)), nil
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	switch {
	case c.Auth.SSHKeyFile != "":
		return "ssh"
	case c.Auth.HTTPSTokenFile != "":
		return "https-token"
	case c.Auth.PasswordFile != "":
		return "https-password"
	default:
		return "none"
	}
}

// IsHTTPS returns true if the repo URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(c.Git.URL, "https://")
}

// IsSSH returns true if the repo URL uses SSH
func (c *Config) IsSSH() bool {
	return strings.HasPrefix(c.Git.URL, "git@") || strings.HasPrefix(c.Git.URL, "ssh://")
}
