package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	crawlerhttp "github.com/VoodooChild99/oss-fuzz-crawler/internal/http"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/layout"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/progress"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/reconcile"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/store"
)

// Config defines configuration for the crawler CLI.
type Config struct {
	Directory              string
	Manifest               string
	Policy                 string
	Scheme                 string
	SkipCheck              bool
	SkipExisting           bool
	BaseURL                string
	BucketSuffix           string
	ChunkSize              int
	RateLimit              int64
	Timeout                time.Duration
	Progress               string
	LogLevel               string
	MaxConsecutiveFailures int
	Retry                  RetryConfig
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// nil retries forever.
	MaxRetries *int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Attempts returns the retry budget in the form the transfer client takes.
func (r RetryConfig) Attempts() int {
	if r.MaxRetries == nil {
		return crawlerhttp.RetryForever
	}
	return *r.MaxRetries
}

// ValidationError reports an unusable setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Policy:       string(reconcile.PolicyHash),
		Scheme:       string(layout.SchemeTarget),
		BaseURL:      layout.DefaultBaseURL,
		BucketSuffix: layout.DefaultBucketSuffix,
		ChunkSize:    1024,
		Timeout:      30 * time.Second,
		Progress:     string(progress.ModeAuto),
		LogLevel:     "info",
		Retry: RetryConfig{
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Directory              string          `yaml:"directory"`
	Manifest               string          `yaml:"manifest"`
	Policy                 string          `yaml:"policy"`
	Scheme                 string          `yaml:"scheme"`
	SkipCheck              bool            `yaml:"skip_check"`
	SkipExisting           bool            `yaml:"skip_existing"`
	BaseURL                string          `yaml:"base_url"`
	BucketSuffix           string          `yaml:"bucket_suffix"`
	ChunkSize              string          `yaml:"chunk_size"`
	RateLimit              string          `yaml:"rate_limit"`
	Timeout                string          `yaml:"timeout"`
	Progress               string          `yaml:"progress"`
	LogLevel               string          `yaml:"log_level"`
	MaxConsecutiveFailures int             `yaml:"max_consecutive_failures"`
	Retry                  yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		Directory:              yc.Directory,
		Manifest:               yc.Manifest,
		Policy:                 yc.Policy,
		Scheme:                 yc.Scheme,
		SkipCheck:              yc.SkipCheck,
		SkipExisting:           yc.SkipExisting,
		BaseURL:                yc.BaseURL,
		BucketSuffix:           yc.BucketSuffix,
		Progress:               yc.Progress,
		LogLevel:               yc.LogLevel,
		MaxConsecutiveFailures: yc.MaxConsecutiveFailures,
		Retry:                  RetryConfig{MaxRetries: yc.Retry.MaxRetries},
	}

	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		override.ChunkSize = int(size)
	}
	if yc.RateLimit != "" {
		limit, err := progress.ParseBytes(yc.RateLimit)
		if err != nil {
			return Config{}, fmt.Errorf("parse rate_limit: %w", err)
		}
		override.RateLimit = limit
	}
	if override.Timeout, err = parseDuration("timeout", yc.Timeout); err != nil {
		return Config{}, err
	}
	if override.Retry.Backoff, err = parseDuration("retry.backoff", yc.Retry.Backoff); err != nil {
		return Config{}, err
	}
	if override.Retry.MaxBackoff, err = parseDuration("retry.max_backoff", yc.Retry.MaxBackoff); err != nil {
		return Config{}, err
	}

	return Default().Merge(override), nil
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CRAWLER_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"CRAWLER_DIRECTORY", &c.Directory},
		{"CRAWLER_MANIFEST", &c.Manifest},
		{"CRAWLER_POLICY", &c.Policy},
		{"CRAWLER_SCHEME", &c.Scheme},
		{"CRAWLER_BASE_URL", &c.BaseURL},
		{"CRAWLER_BUCKET_SUFFIX", &c.BucketSuffix},
		{"CRAWLER_PROGRESS", &c.Progress},
		{"CRAWLER_LOG_LEVEL", &c.LogLevel},
	}
	for _, s := range strs {
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("CRAWLER_SKIP_CHECK"); v != "" {
		c.SkipCheck = v == "true" || v == "1"
	}
	if v := os.Getenv("CRAWLER_SKIP_EXISTING"); v != "" {
		c.SkipExisting = v == "true" || v == "1"
	}
	if v := os.Getenv("CRAWLER_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = int(size)
	}
	if v := os.Getenv("CRAWLER_RATE_LIMIT"); v != "" {
		limit, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_RATE_LIMIT: %w", err)
		}
		c.RateLimit = limit
	}
	if v := os.Getenv("CRAWLER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("CRAWLER_MAX_CONSECUTIVE_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_MAX_CONSECUTIVE_FAILURES: %w", err)
		}
		c.MaxConsecutiveFailures = n
	}
	if v := os.Getenv("CRAWLER_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_MAX_RETRIES: %w", err)
		}
		c.Retry.MaxRetries = &n
	}
	if v := os.Getenv("CRAWLER_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("CRAWLER_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CRAWLER_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration. Every failure is a
// *ValidationError. A local Directory must already exist.
func (c *Config) Validate() error {
	if c.Directory == "" {
		return invalid("directory", "is required")
	}
	if !store.IsURL(c.Directory) {
		info, err := os.Stat(c.Directory)
		if err != nil {
			return invalid("directory", "%s does not exist", c.Directory)
		}
		if !info.IsDir() {
			return invalid("directory", "%s is not a directory", c.Directory)
		}
	}
	if c.Manifest == "" {
		return invalid("manifest", "is required")
	}
	policy, err := reconcile.ParsePolicy(c.Policy)
	if err != nil {
		return invalid("policy", "unknown policy %q", c.Policy)
	}
	if c.SkipCheck && policy != reconcile.PolicyHash {
		return invalid("skip_check", "only applies to policy %s", reconcile.PolicyHash)
	}
	if c.SkipExisting && policy != reconcile.PolicyExists {
		return invalid("skip_existing", "only applies to policy %s", reconcile.PolicyExists)
	}
	if _, err := layout.ParseScheme(c.Scheme); err != nil {
		return invalid("scheme", "unknown scheme %q", c.Scheme)
	}
	if _, err := progress.ParseMode(c.Progress); err != nil {
		return invalid("progress", "unknown mode %q", c.Progress)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown level %q", c.LogLevel)
	}
	if c.ChunkSize <= 0 {
		return invalid("chunk_size", "must be positive")
	}
	if c.RateLimit < 0 {
		return invalid("rate_limit", "must not be negative")
	}
	if c.MaxConsecutiveFailures < 0 {
		return invalid("max_consecutive_failures", "must not be negative")
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return invalid("max_retries", "must not be negative, got %d", *c.Retry.MaxRetries)
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return invalid("retry", "backoff must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Directory != "" {
		c.Directory = override.Directory
	}
	if override.Manifest != "" {
		c.Manifest = override.Manifest
	}
	if override.Policy != "" {
		c.Policy = override.Policy
	}
	if override.Scheme != "" {
		c.Scheme = override.Scheme
	}
	if override.SkipCheck {
		c.SkipCheck = true
	}
	if override.SkipExisting {
		c.SkipExisting = true
	}
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.BucketSuffix != "" {
		c.BucketSuffix = override.BucketSuffix
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.RateLimit != 0 {
		c.RateLimit = override.RateLimit
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Progress != "" {
		c.Progress = override.Progress
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.MaxConsecutiveFailures != 0 {
		c.MaxConsecutiveFailures = override.MaxConsecutiveFailures
	}
	if override.Retry.MaxRetries != nil {
		n := *override.Retry.MaxRetries
		c.Retry.MaxRetries = &n
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
