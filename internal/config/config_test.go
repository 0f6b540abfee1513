package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"LL_DB_PATH", "LL_PORT", "LL_CATALOGUE", "LL_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Experiments.MinSampleSize != 500 {
		t.Errorf("min sample = %d, want 500", cfg.Experiments.MinSampleSize)
	}
	if !cfg.Patterns.ProductionOnly {
		t.Error("production_only should default to true")
	}
	if cfg.StorageTimeout().Seconds() != 5 {
		t.Errorf("timeout = %v, want 5s", cfg.StorageTimeout())
	}
}

func TestLoad_XDGFile(t *testing.T) {
	isolate(t)
	xdg := os.Getenv("XDG_CONFIG_HOME")
	dir := filepath.Join(xdg, "landing-lab")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := `
[storage]
db_path = "/tmp/exp.db"

[experiments]
min_sample_size = 50

[log]
format = "json"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DBPath != "/tmp/exp.db" {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
	if cfg.Experiments.MinSampleSize != 50 {
		t.Errorf("min sample = %d, want 50", cfg.Experiments.MinSampleSize)
	}
	if cfg.Experiments.ConfidenceLevel != 0.95 {
		t.Errorf("confidence = %v, unset keys should keep defaults", cfg.Experiments.ConfidenceLevel)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("format = %q", cfg.Log.Format)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LL_DB_PATH", "/data/ll.db")
	t.Setenv("LL_PORT", "9090")
	t.Setenv("LL_CATALOGUE", "/data/patterns.yaml")
	t.Setenv("LL_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(path, []byte("[server]\nport = 7000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, env should win over file", cfg.Server.Port)
	}
	if cfg.Storage.DBPath != "/data/ll.db" || cfg.Patterns.Catalogue != "/data/patterns.yaml" || cfg.Log.Level != "debug" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	isolate(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("explicit missing path should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("[experiments]\nconfidence_level = 1.5\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("confidence_level 1.5 should fail validation")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	if got := expandHome("~/x.db"); got != "/home/test/x.db" {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("./x.db"); got != "./x.db" {
		t.Errorf("expandHome = %q", got)
	}
}
