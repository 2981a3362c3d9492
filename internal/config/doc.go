// Package config defines configuration structures for the crawler CLI.
//
// Configuration can be provided via, in increasing precedence:
//   - YAML configuration file
//   - Environment variables (CRAWLER_ prefix)
//   - Command-line flags
//
// # Structure
//
//	type Config struct {
//	    Directory    string
//	    Manifest     string
//	    Policy       string
//	    Scheme       string
//	    SkipCheck    bool
//	    SkipExisting bool
//	    ChunkSize    int
//	    RateLimit    int64
//	    Progress     string
//	    Retry        RetryConfig
//	    ...
//	}
//
//	type RetryConfig struct {
//	    MaxRetries *int // nil retries forever
//	    Backoff    time.Duration
//	    MaxBackoff time.Duration
//	}
package config
