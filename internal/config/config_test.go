package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default(dir)
	if cfg != want {
		t.Fatalf("got %+v, want defaults %+v", cfg, want)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	cfg.ListenAddr = "0.0.0.0:9999"
	cfg.BufferPoolSize = 64
	cfg.LogLevel = "debug"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "coredb.toml")); err != nil {
		t.Fatalf("expected coredb.toml to exist: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("got %+v, want %+v", loaded, cfg)
	}
}

func TestLoadOverlaysPartialFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "coredb.toml"), []byte(`listen_addr = "127.0.0.1:1"`+"\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:1" {
		t.Fatalf("ListenAddr = %q, want overlay value", cfg.ListenAddr)
	}
	if cfg.BufferPoolSize != Default(dir).BufferPoolSize {
		t.Fatalf("BufferPoolSize = %d, want the default to survive a partial overlay", cfg.BufferPoolSize)
	}
}
