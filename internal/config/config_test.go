package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Root != "." {
		t.Errorf("root = %q, want .", cfg.Root)
	}
	if cfg.Workers <= 0 {
		t.Error("workers must default to a positive count")
	}
	if time.Duration(cfg.FileTimeout) != 10*time.Second {
		t.Errorf("file_timeout = %v, want 10s", time.Duration(cfg.FileTimeout))
	}
	if cfg.Output.Dir != ".selitys" {
		t.Errorf("output dir = %q", cfg.Output.Dir)
	}
	if !cfg.RespectIgnores {
		t.Error("gitignore handling should default on")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selitys.yaml")
	content := `root: /srv/repo
include:
  - "src/**"
exclude:
  - "**/*.min.js"
max_file_size: 500000
workers: 2
file_timeout: 30s
cache_size: 128
output:
  dir: out
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Root != "/srv/repo" {
		t.Errorf("root = %q", cfg.Root)
	}
	if len(cfg.Include) != 1 || cfg.Include[0] != "src/**" {
		t.Errorf("include = %v", cfg.Include)
	}
	if cfg.MaxFileSize != 500000 {
		t.Errorf("max_file_size = %d", cfg.MaxFileSize)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if time.Duration(cfg.FileTimeout) != 30*time.Second {
		t.Errorf("file_timeout = %v", time.Duration(cfg.FileTimeout))
	}
	if cfg.Output.Dir != "out" {
		t.Errorf("output dir = %q", cfg.Output.Dir)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selitys.yaml")
	if err := os.WriteFile(path, []byte("root: /srv/repo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers <= 0 || cfg.CacheSize != 8192 || cfg.Output.Dir != ".selitys" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selitys.yaml")
	if err := os.WriteFile(path, []byte("file_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
