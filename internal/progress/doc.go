// Package progress provides progress reporting for corpus transfers.
//
// The transfer client is handed a [Reporter] and calls it from its read
// loop; nothing in this package is global.
//
// # Usage
//
//	reporter := progress.New(progress.ModeAuto, os.Stderr)
//
//	reporter.Start("zlib-compress_fuzzer", contentLength)
//	reporter.Advance(int64(n)) // per chunk
//	reporter.Finish()
//
// # Reporters
//
//   - [Bar]: interactive terminal bar
//   - [Lines]: periodic status lines, suitable for logs and CI
//   - [Nop]: discards everything
//
// # Output Format (Lines)
//
//	[crawler] Downloading: zlib-compress_fuzzer (12 MiB)
//	[crawler] zlib-compress_fuzzer: 45.2% | 5.4 MiB / 12 MiB | Speed: 1.2 MiB/s | ETA: 5s
//	[crawler] zlib-compress_fuzzer: 12 MiB in 10s | Average speed: 1.2 MiB/s
package progress
