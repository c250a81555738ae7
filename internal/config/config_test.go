package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.FetchWorkers != 6 || cfg.ProcessWorkers != 2 {
		t.Fatalf("unexpected worker defaults: %d, %d", cfg.FetchWorkers, cfg.ProcessWorkers)
	}
	if cfg.Retry.Attempts != 3 {
		t.Fatalf("Retry.Attempts = %d, want 3", cfg.Retry.Attempts)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
output_dir: /tmp/images
fetch_workers: 12
progressive: true
resize_width: 800
resize_height: 600
retry:
  attempts: 5
  backoff: 250ms
  max_backoff: 5s
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.OutputDir != "/tmp/images" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.FetchWorkers != 12 {
		t.Errorf("FetchWorkers = %d, want 12", cfg.FetchWorkers)
	}
	if cfg.ProcessWorkers != 2 {
		t.Errorf("ProcessWorkers = %d, want default 2", cfg.ProcessWorkers)
	}
	if !cfg.Progressive {
		t.Error("Progressive not set")
	}
	if cfg.ResizeWidth != 800 || cfg.ResizeHeight != 600 {
		t.Errorf("resize = %dx%d, want 800x600", cfg.ResizeWidth, cfg.ResizeHeight)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("Retry.Attempts = %d, want 5", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 250*time.Millisecond {
		t.Errorf("Retry.Backoff = %v, want 250ms", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 5*time.Second {
		t.Errorf("Retry.MaxBackoff = %v, want 5s", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := LoadFromFile(writeConfig(t, "not: [valid")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
	if _, err := LoadFromFile(writeConfig(t, "retry:\n  backoff: fast")); err == nil {
		t.Error("expected an error for an invalid duration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NUKE_OUTPUT_DIR", "/env/out")
	t.Setenv("NUKE_FETCH_WORKERS", "9")
	t.Setenv("NUKE_RATE_LIMIT", "true")
	t.Setenv("NUKE_RETRY_BACKOFF", "2s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.OutputDir != "/env/out" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.FetchWorkers != 9 {
		t.Errorf("FetchWorkers = %d, want 9", cfg.FetchWorkers)
	}
	if !cfg.RateLimit {
		t.Error("RateLimit not set")
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("Retry.Backoff = %v, want 2s", cfg.Retry.Backoff)
	}
}

func TestLoadFromEnvErrors(t *testing.T) {
	t.Setenv("NUKE_FETCH_WORKERS", "many")
	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected an error for a non-numeric worker count")
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	merged := base.Merge(Config{
		OutputDir:    "/override",
		FetchWorkers: 20,
		Progressive:  true,
	})
	if merged.OutputDir != "/override" {
		t.Errorf("OutputDir = %q", merged.OutputDir)
	}
	if merged.FetchWorkers != 20 {
		t.Errorf("FetchWorkers = %d, want 20", merged.FetchWorkers)
	}
	if !merged.Progressive {
		t.Error("Progressive not merged")
	}
	// Zero values in the override must not clobber the base.
	if merged.ProcessWorkers != base.ProcessWorkers {
		t.Errorf("ProcessWorkers = %d, want %d", merged.ProcessWorkers, base.ProcessWorkers)
	}
	if merged.Retry.Backoff != base.Retry.Backoff {
		t.Errorf("Retry.Backoff = %v, want %v", merged.Retry.Backoff, base.Retry.Backoff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }, wantErr: true},
		{name: "zero fetch workers", mutate: func(c *Config) { c.FetchWorkers = 0 }, wantErr: true},
		{name: "negative cache bytes", mutate: func(c *Config) { c.CacheBytes = -1 }, wantErr: true},
		{name: "resize width alone", mutate: func(c *Config) { c.ResizeWidth = 800 }, wantErr: true},
		{name: "resize pair", mutate: func(c *Config) { c.ResizeWidth = 800; c.ResizeHeight = 600 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
