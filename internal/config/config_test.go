package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	crawlerhttp "github.com/VoodooChild99/oss-fuzz-crawler/internal/http"
)

func intPtr(n int) *int { return &n }

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Policy != "hash" {
		t.Errorf("expected default policy hash, got %s", cfg.Policy)
	}
	if cfg.Scheme != "target" {
		t.Errorf("expected default scheme target, got %s", cfg.Scheme)
	}
	if cfg.ChunkSize != 1024 {
		t.Errorf("expected default chunk size 1024, got %d", cfg.ChunkSize)
	}
	if cfg.BaseURL != "https://storage.googleapis.com" {
		t.Errorf("unexpected default base URL %s", cfg.BaseURL)
	}
	if cfg.BucketSuffix != "clusterfuzz-external.appspot.com" {
		t.Errorf("unexpected default bucket suffix %s", cfg.BucketSuffix)
	}
	if cfg.Retry.MaxRetries != nil {
		t.Errorf("expected unbounded retries by default, got %d", *cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Attempts() != crawlerhttp.RetryForever {
		t.Errorf("expected RetryForever, got %d", cfg.Retry.Attempts())
	}
	if cfg.Retry.Backoff != time.Second {
		t.Errorf("expected default retry backoff 1s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("expected default retry max backoff 30s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
directory: /srv/corpora
manifest: projects.toml
policy: exists
scheme: combined
skip_existing: true
chunk_size: 64KiB
rate_limit: 10MB
timeout: 1m
progress: lines
log_level: debug
max_consecutive_failures: 5
retry:
  max_retries: 3
  backoff: 2s
  max_backoff: 60s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Directory != "/srv/corpora" {
		t.Errorf("expected directory /srv/corpora, got %s", cfg.Directory)
	}
	if cfg.Manifest != "projects.toml" {
		t.Errorf("expected manifest projects.toml, got %s", cfg.Manifest)
	}
	if cfg.Policy != "exists" || cfg.Scheme != "combined" {
		t.Errorf("expected exists/combined, got %s/%s", cfg.Policy, cfg.Scheme)
	}
	if !cfg.SkipExisting || cfg.SkipCheck {
		t.Errorf("unexpected skip flags: check=%v existing=%v", cfg.SkipCheck, cfg.SkipExisting)
	}
	if cfg.ChunkSize != 64*1024 {
		t.Errorf("expected chunk size 64KiB, got %d", cfg.ChunkSize)
	}
	if cfg.RateLimit != 10_000_000 {
		t.Errorf("expected rate limit 10MB, got %d", cfg.RateLimit)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("expected timeout 1m, got %v", cfg.Timeout)
	}
	if cfg.Progress != "lines" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected progress/log level: %s/%s", cfg.Progress, cfg.LogLevel)
	}
	if cfg.MaxConsecutiveFailures != 5 {
		t.Errorf("expected 5 consecutive failures, got %d", cfg.MaxConsecutiveFailures)
	}
	if cfg.Retry.Attempts() != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Retry.Attempts())
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 60*time.Second {
		t.Errorf("expected retry max backoff 60s, got %v", cfg.Retry.MaxBackoff)
	}

	// Unset keys keep their defaults.
	if cfg.BaseURL != "https://storage.googleapis.com" {
		t.Errorf("expected default base URL, got %s", cfg.BaseURL)
	}
}

func TestLoadFromYAMLZeroRetries(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("retry:\n  max_retries: 0\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Retry.MaxRetries == nil || cfg.Retry.Attempts() != 0 {
		t.Errorf("expected an explicit budget of 0, got %v", cfg.Retry.MaxRetries)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CRAWLER_DIRECTORY", "gs://mirror")
	t.Setenv("CRAWLER_POLICY", "exists")
	t.Setenv("CRAWLER_SKIP_CHECK", "1")
	t.Setenv("CRAWLER_CHUNK_SIZE", "4KiB")
	t.Setenv("CRAWLER_RATE_LIMIT", "1MiB")
	t.Setenv("CRAWLER_MAX_RETRIES", "7")
	t.Setenv("CRAWLER_RETRY_BACKOFF", "500ms")
	t.Setenv("CRAWLER_RETRY_MAX_BACKOFF", "10s")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Directory != "gs://mirror" {
		t.Errorf("expected directory gs://mirror, got %s", cfg.Directory)
	}
	if cfg.Policy != "exists" {
		t.Errorf("expected policy exists, got %s", cfg.Policy)
	}
	if !cfg.SkipCheck {
		t.Error("expected skip check true")
	}
	if cfg.ChunkSize != 4096 {
		t.Errorf("expected chunk size 4096, got %d", cfg.ChunkSize)
	}
	if cfg.RateLimit != 1024*1024 {
		t.Errorf("expected rate limit 1MiB, got %d", cfg.RateLimit)
	}
	if cfg.Retry.Attempts() != 7 {
		t.Errorf("expected 7 retries, got %d", cfg.Retry.Attempts())
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 10*time.Second {
		t.Errorf("expected retry max backoff 10s, got %v", cfg.Retry.MaxBackoff)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("CRAWLER_MAX_RETRIES", "lots")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for non-numeric CRAWLER_MAX_RETRIES")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	valid := func() Config {
		cfg := Default()
		cfg.Directory = dir
		cfg.Manifest = "projects.toml"
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "bucket URL", mutate: func(c *Config) { c.Directory = "mem://" }},
		{name: "zero retries", mutate: func(c *Config) { c.Retry.MaxRetries = intPtr(0) }},
		{name: "missing directory", mutate: func(c *Config) { c.Directory = "" }, wantField: "directory"},
		{name: "nonexistent directory", mutate: func(c *Config) { c.Directory = filepath.Join(dir, "nope") }, wantField: "directory"},
		{name: "directory is a file", mutate: func(c *Config) { c.Directory = file }, wantField: "directory"},
		{name: "missing manifest", mutate: func(c *Config) { c.Manifest = "" }, wantField: "manifest"},
		{name: "unknown policy", mutate: func(c *Config) { c.Policy = "mtime" }, wantField: "policy"},
		{name: "skip check with exists policy", mutate: func(c *Config) { c.Policy = "exists"; c.SkipCheck = true }, wantField: "skip_check"},
		{name: "skip existing with hash policy", mutate: func(c *Config) { c.SkipExisting = true }, wantField: "skip_existing"},
		{name: "skip existing with exists policy", mutate: func(c *Config) { c.Policy = "exists"; c.SkipExisting = true }},
		{name: "unknown scheme", mutate: func(c *Config) { c.Scheme = "flat" }, wantField: "scheme"},
		{name: "unknown progress mode", mutate: func(c *Config) { c.Progress = "fancy" }, wantField: "progress"},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "chatty" }, wantField: "log_level"},
		{name: "invalid chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantField: "chunk_size"},
		{name: "negative rate limit", mutate: func(c *Config) { c.RateLimit = -1 }, wantField: "rate_limit"},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = intPtr(-1) }, wantField: "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() expected *ValidationError, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Validate() field = %s, want %s", ve.Field, tt.wantField)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.Directory = "/srv/corpora"
	base.Retry.MaxRetries = intPtr(5)

	override := Config{
		Policy:    "exists",
		SkipCheck: true,
		Retry:     RetryConfig{MaxRetries: intPtr(0)},
	}

	merged := base.Merge(override)

	// Should keep base values for non-overridden fields
	if merged.Directory != "/srv/corpora" {
		t.Errorf("expected Directory preserved, got %s", merged.Directory)
	}
	if merged.ChunkSize != 1024 {
		t.Errorf("expected ChunkSize preserved, got %d", merged.ChunkSize)
	}

	// Should use override values
	if merged.Policy != "exists" {
		t.Errorf("expected Policy overridden to exists, got %s", merged.Policy)
	}
	if !merged.SkipCheck {
		t.Error("expected SkipCheck overridden to true")
	}
	if merged.Retry.Attempts() != 0 {
		t.Errorf("expected an explicit zero retry budget to win, got %d", merged.Retry.Attempts())
	}

	// The merged config does not alias the override.
	*override.Retry.MaxRetries = 9
	if merged.Retry.Attempts() != 0 {
		t.Errorf("merged config aliases override: %d", merged.Retry.Attempts())
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadYAMLInvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("retry:\n  backoff: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid duration")
	}
}
