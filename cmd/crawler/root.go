package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/VoodooChild99/oss-fuzz-crawler/internal/config"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/logging"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/progress"
)

// app carries the resolved configuration from PersistentPreRunE to RunE
// and back out to run.
type app struct {
	stderr io.Writer
	flags  cliFlags
	cfg    config.Config
	logger *zap.Logger
}

type cliFlags struct {
	configFile             string
	directory              string
	skipCheck              bool
	skipExisting           bool
	policy                 string
	scheme                 string
	maxRetries             int
	retryBackoff           time.Duration
	timeout                time.Duration
	chunkSize              string
	rateLimit              string
	progress               string
	logLevel               string
	baseURL                string
	bucketSuffix           string
	maxConsecutiveFailures int
}

func newRootCmd(stderr io.Writer) (*cobra.Command, *app) {
	a := &app{stderr: stderr}

	cmd := &cobra.Command{
		Use:   "crawler [flags] MANIFEST",
		Short: "Mirror OSS-Fuzz public corpora",
		Long: `crawler mirrors the public libFuzzer corpus archives of OSS-Fuzz projects.

MANIFEST is a TOML file mapping each project to its fuzz targets:

  libpng = ["libpng_read_fuzzer"]
  zlib   = ["zlib_uncompress_fuzzer", "checksum_fuzzer"]

Archives land in DIRECTORY/<project>/, which may also be a bucket URL
(gs://, s3://, file://, mem://). Targets are processed one at a time in
manifest order; a failing target is logged and skipped.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return &usageError{fmt.Errorf("expected a single MANIFEST argument, got %d", len(args))}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags(), args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.crawl(cmd.Context())
		},
	}

	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	f := &a.flags
	fs := cmd.Flags()
	fs.StringVarP(&f.directory, "directory", "d", "", "Mirror root: an existing directory or a bucket URL (required)")
	fs.BoolVarP(&f.skipCheck, "skip-check", "s", false, "Hash policy: keep existing archives without downloading them")
	fs.BoolVarP(&f.skipExisting, "skip-existing", "e", false, "Exists policy: keep existing archives")
	fs.StringVarP(&f.policy, "policy", "p", "hash", "Staleness check: hash or exists")
	fs.StringVar(&f.scheme, "scheme", "target", "Artifact naming: target or combined")
	fs.IntVarP(&f.maxRetries, "max-retries", "m", 0, "Retries per archive after the first attempt (default: retry forever)")
	fs.DurationVar(&f.retryBackoff, "retry-backoff", time.Second, "Initial delay between retries")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "Time to wait for response headers")
	fs.StringVar(&f.chunkSize, "chunk-size", "1KiB", "Read buffer size")
	fs.StringVar(&f.rateLimit, "rate-limit", "", "Throughput cap per second, e.g. 10MB (default: unlimited)")
	fs.StringVar(&f.progress, "progress", "auto", "Progress output: auto, bar, lines or none")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&f.baseURL, "base-url", "", "Storage endpoint (default: "+config.Default().BaseURL+")")
	fs.StringVar(&f.bucketSuffix, "bucket-suffix", "", "Backup bucket suffix (default: "+config.Default().BucketSuffix+")")
	fs.IntVar(&f.maxConsecutiveFailures, "max-consecutive-failures", 0, "Abort after this many failures in a row (0 disables)")
	fs.StringVar(&f.configFile, "config", "", "YAML configuration file")

	return cmd, a
}

// sync flushes the logger. cobra skips post-run hooks when RunE fails, so
// run calls this after Execute returns.
func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// setup resolves the configuration (defaults < file < env < flags) and
// builds the logger.
func (a *app) setup(fs *pflag.FlagSet, args []string) error {
	cfg := config.Default()
	if a.flags.configFile != "" {
		loaded, err := config.LoadFromFile(a.flags.configFile)
		if err != nil {
			return &usageError{err}
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return &usageError{err}
	}

	override, err := a.flagOverrides(fs, args)
	if err != nil {
		return &usageError{err}
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, a.stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// flagOverrides returns a Config holding only the flags set on the
// command line.
func (a *app) flagOverrides(fs *pflag.FlagSet, args []string) (config.Config, error) {
	f := a.flags
	var c config.Config

	if len(args) == 1 {
		c.Manifest = args[0]
	}
	if fs.Changed("directory") {
		c.Directory = f.directory
	}
	c.SkipCheck = f.skipCheck
	c.SkipExisting = f.skipExisting
	if fs.Changed("policy") {
		c.Policy = f.policy
	}
	if fs.Changed("scheme") {
		c.Scheme = f.scheme
	}
	if fs.Changed("max-retries") {
		n := f.maxRetries
		c.Retry.MaxRetries = &n
	}
	if fs.Changed("retry-backoff") {
		c.Retry.Backoff = f.retryBackoff
	}
	if fs.Changed("timeout") {
		c.Timeout = f.timeout
	}
	if fs.Changed("chunk-size") {
		size, err := progress.ParseBytes(f.chunkSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("--chunk-size: %w", err)
		}
		c.ChunkSize = int(size)
	}
	if fs.Changed("rate-limit") {
		limit, err := progress.ParseBytes(f.rateLimit)
		if err != nil {
			return config.Config{}, fmt.Errorf("--rate-limit: %w", err)
		}
		c.RateLimit = limit
	}
	if fs.Changed("progress") {
		c.Progress = f.progress
	}
	if fs.Changed("log-level") {
		c.LogLevel = f.logLevel
	}
	if fs.Changed("base-url") {
		c.BaseURL = f.baseURL
	}
	if fs.Changed("bucket-suffix") {
		c.BucketSuffix = f.bucketSuffix
	}
	if fs.Changed("max-consecutive-failures") {
		c.MaxConsecutiveFailures = f.maxConsecutiveFailures
	}
	return c, nil
}
