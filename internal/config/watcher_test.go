package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherConfig = `
gateway:
  port: 8000

upstreams:
  - name: users
    algorithm: round-robin
    targets:
      - host: 127.0.0.1
        port: 9001

services:
  - name: user-service
    upstream: users
    routes:
      - paths: ["/api/users/*"]
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestWatcherAppliesChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portway.yaml")
	writeConfig(t, path, watcherConfig)

	applied := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) error {
		applied <- cfg
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.SetDebounce(10 * time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, watcherConfig+`
  - name: order-service
    upstream: users
    routes:
      - paths: ["/api/orders/*"]
`)

	select {
	case cfg := <-applied:
		if len(cfg.Services) != 2 {
			t.Errorf("expected 2 services after reload, got %d", len(cfg.Services))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected the changed file to be applied")
	}
}

func TestWatcherRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portway.yaml")
	writeConfig(t, path, `
upstreams:
  - name: users
    algorithm: fastest
`)

	calls := 0
	w, err := NewWatcher(path, func(*Config) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	w.reload()
	if calls != 0 {
		t.Errorf("expected invalid file to not be applied, got %d calls", calls)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portway.yaml")
	writeConfig(t, path, watcherConfig)

	applied := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) error {
		applied <- cfg
		return nil
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.SetDebounce(10 * time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	writeConfig(t, filepath.Join(dir, "other.yaml"), "gateway:\n  port: 1\n")

	select {
	case <-applied:
		t.Error("expected a sibling file change to be ignored")
	case <-time.After(200 * time.Millisecond):
	}
}
