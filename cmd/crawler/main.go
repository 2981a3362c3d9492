package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/VoodooChild99/oss-fuzz-crawler/internal/config"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/downloader"
	"github.com/VoodooChild99/oss-fuzz-crawler/internal/manifest"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitManifestError = 3
	ExitStorageError  = 4
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[crawler] Received interrupt, shutting down...")
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes the crawler with args and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	cmd, a := newRootCmd(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	a.sync()
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "[crawler] Interrupted, bye")
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}

	code := exitCode(err)
	if code == ExitInvalidArgs {
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	return code
}

// usageError marks bad command-line input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

// storageError marks a mirror location that cannot be opened.
type storageError struct {
	err error
}

func (e *storageError) Error() string { return e.err.Error() }

func (e *storageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var (
		ue *usageError
		ve *config.ValidationError
		me *manifest.Error
		se *storageError
		de *downloader.DirError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ue), errors.As(err, &ve):
		return ExitInvalidArgs
	case errors.As(err, &me):
		return ExitManifestError
	case errors.As(err, &se), errors.As(err, &de):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
