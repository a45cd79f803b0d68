package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a config file and points GRAYHUB_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("GRAYHUB_CONFIG", path)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYHUB_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GRAYHUB_CONFIG", "/etc/grayhub/config.yaml")
	if got := getConfigPath(); got != "/etc/grayhub/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("GRAYHUB_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with missing config file")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	writeConfig(t, `
bridge:
  mode: "sideways"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid bridge mode")
	}
}

func TestRun_CleanStartupAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping startup test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), "hub.db")
	writeConfig(t, `
hub:
  id: test-hub
  name: "Test Hub"
  update_check_interval: 0

storage:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5

bridge:
  mode: bridge
  fail_count_limit: 10
  poll_interval_ms: 5
  settle_delay_seconds: 0
  network:
    port: 5540
    mdns: false

api:
  enabled: false

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`)

	// run blocks until the context is done, then tears down.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
