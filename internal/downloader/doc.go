// Package downloader walks a corpus manifest and mirrors every target.
//
// A Runner processes projects and their targets strictly in manifest
// order, one transfer at a time. Before a project's targets are touched
// its directory is created; failing to do so aborts the whole run.
// Everything that goes wrong with a single target is recorded in the
// Summary and the run moves on to the next one.
//
// # Usage
//
//	r := downloader.New(reconciler, st, downloader.Options{}, logger)
//	summary, err := r.Run(ctx, m)
//
// # Consecutive failures
//
// When Options.MaxConsecutiveFailures is set, a run stops after that many
// targets in a row have failed and returns a *ConsecutiveFailuresError.
// This catches a dead network or a revoked bucket early instead of
// logging the same error for every remaining target.
//
// # Graceful Shutdown
//
// On SIGINT/SIGTERM the caller cancels ctx. The in-flight transfer is
// abandoned without touching its artifact and Run returns ctx.Err() along
// with the partial Summary.
package downloader
