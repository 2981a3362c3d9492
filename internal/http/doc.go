// Package http provides the transfer client used to fetch corpus archives.
//
// This package handles:
//   - Connection pooling across sequential requests
//   - Chunked body reads with progress reporting
//   - Optional bandwidth limiting
//   - Retry with exponential backoff for transport errors
//   - Streaming into a caller-supplied destination that can discard
//     partial writes
//
// A response other than 200 OK is never retried: it means the corpus is
// missing or the URL is wrong. A negative RetryAttempts retries transport
// errors until the context is cancelled.
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    RetryAttempts: http.RetryForever,
//	    Progress:      reporter,
//	})
//
//	// Whole body in memory
//	data, err := client.Fetch(ctx, url, "zlib-compress_fuzzer")
//
//	// Straight into a destination
//	n, err := client.FetchTo(ctx, url, "zlib-compress_fuzzer", dst)
package http
