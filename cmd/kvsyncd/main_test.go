package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/schaermu/kvsyncd/internal/config"
	"github.com/schaermu/kvsyncd/internal/kv/kvtest"
)

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
		debug     bool
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text", debug: true},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tc.debug {
				t.Errorf("debug enabled = %v, want %v", got, tc.debug)
			}
		})
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTestConfig(t *testing.T, rootPath string) string {
	t.Helper()
	content := []byte(`source: files
kv:
  prefix: "apps/config"
files:
  root_path: "` + rootPath + `"
  target: "dev"
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return cfgPath
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = writeTestConfig(t, t.TempDir())

	cfg, err := loadConfig(testLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.KVPath() != "apps/config/" {
		t.Errorf("unexpected kv path %q", cfg.KVPath())
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")

	if _, err := loadConfig(testLogger()); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_DefaultPath(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })
	t.Setenv("HOME", t.TempDir())
	cfgFile = ""

	// Expect error because the default config file doesn't exist
	if _, err := loadConfig(testLogger()); err == nil {
		t.Error("expected error when default config file doesn't exist")
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("KVSYNCD_TEST_A=from-env\nKVSYNCD_TEST_B=from-env\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("KVSYNCD_TEST_B=from-local\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("KVSYNCD_TEST_A", "")
	t.Setenv("KVSYNCD_TEST_B", "")
	_ = os.Unsetenv("KVSYNCD_TEST_A")
	_ = os.Unsetenv("KVSYNCD_TEST_B")

	loadEnvFiles()

	if got := os.Getenv("KVSYNCD_TEST_A"); got != "from-env" {
		t.Errorf("KVSYNCD_TEST_A = %q, want from-env", got)
	}
	if got := os.Getenv("KVSYNCD_TEST_B"); got != "from-local" {
		t.Errorf("KVSYNCD_TEST_B = %q, want from-local", got)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestNewApp_FilesModePopulates(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "dev"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app.yaml"), []byte("port: 8080\nhost: localhost\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "dev", "app.yaml"), []byte("port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(writeTestConfig(t, root))
	if err != nil {
		t.Fatal(err)
	}
	store := kvtest.NewMemory(map[string]string{"apps/config/old": "x"})

	a, err := newApp(context.Background(), cfg, store, nil, false, testLogger())
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	defer a.close()

	if _, err := a.service.Populate(context.Background()); err != nil {
		t.Fatalf("Populate returned error: %v", err)
	}

	want := map[string]string{"apps/config/app": "port: 9090\nhost: localhost\n"}
	got := store.Data()
	if len(got) != len(want) || got["apps/config/app"] != want["apps/config/app"] {
		t.Errorf("store = %v, want %v", got, want)
	}
}

func TestNewStore_TokenFileMissing(t *testing.T) {
	cfg := &config.Config{Consul: config.ConsulConfig{
		Address:   "127.0.0.1:8500",
		TokenFile: filepath.Join(t.TempDir(), "missing"),
	}}
	if _, err := newStore(cfg, testLogger()); err == nil {
		t.Error("expected error for missing token file")
	}
}

func TestVersionCmd(t *testing.T) {
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}
