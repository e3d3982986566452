package main

import (
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.MergedDir != filepath.Join(home, ".local", "share", "braid", "merged") {
		t.Errorf("merged dir = %q", cfg.MergedDir)
	}
	if cfg.BatchSize != defaultBatchSize {
		t.Errorf("batch size = %d, want %d", cfg.BatchSize, defaultBatchSize)
	}
	if cfg.ChunkMaxLines != defaultChunkMaxLines {
		t.Errorf("chunk max lines = %d, want %d", cfg.ChunkMaxLines, defaultChunkMaxLines)
	}
	if !cfg.APIEnabled {
		t.Error("API should default to enabled")
	}
	if cfg.APIAddr != "127.0.0.1:8787" {
		t.Errorf("api addr = %q", cfg.APIAddr)
	}
	if cfg.SocketPath == "" {
		t.Error("socket path should have a default")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BRAID_BATCH_SIZE", "500")
	t.Setenv("BRAID_API_PORT", "9999")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("batch size = %d, want 500", cfg.BatchSize)
	}
	if cfg.APIAddr != "127.0.0.1:9999" {
		t.Errorf("api addr = %q", cfg.APIAddr)
	}
}

func TestLoadConfigInvalidPort(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BRAID_API_PORT", "99999")

	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error for out-of-range api-port")
	}
}

func TestLoadConfigInvalidBatchSize(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BRAID_BATCH_SIZE", "-5")

	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error for negative batch-size")
	}
}

func TestLoadConfigTildeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BRAID_MERGED_DIR", "~/sessions/current")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.MergedDir != filepath.Join(home, "sessions", "current") {
		t.Errorf("merged dir = %q", cfg.MergedDir)
	}
}
