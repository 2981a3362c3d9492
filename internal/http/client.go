package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/VoodooChild99/oss-fuzz-crawler/internal/progress"
)

// RetryForever disables the retry bound.
const RetryForever = -1

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 1024

// StatusError is returned when the server answers with anything but
// 200 OK. It is never retried.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return fmt.Sprintf("http: unexpected status %s for %s", e.Status, e.URL)
	}
	return fmt.Sprintf("http: unexpected status %s for %s: %s", e.Status, e.URL, body)
}

// TransportError is returned once the retry budget is spent on network
// failures.
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("http: giving up on %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WriteError wraps a failure of the destination. It is never retried.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("http: write destination: %v", e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport failure that another
// attempt could fix.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	var we *WriteError
	return !errors.As(err, &se) && !errors.As(err, &we)
}

// Destination receives one attempt's body. Cancelling the context passed
// to Create must make Close discard everything written through that
// writer.
type Destination interface {
	Create(ctx context.Context) (io.WriteCloser, error)
}

// Options configures the transfer client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 4
	MaxIdleConnsPerHost int

	// Timeout bounds the wait for response headers. The body read is
	// bounded only by the context.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	// Negative retries forever.
	// Default: RetryForever
	RetryAttempts int

	// RetryBackoff is the initial backoff duration. Zero retries at once.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// ChunkSize is the read buffer size.
	// Default: 1024
	ChunkSize int

	// RateLimit caps throughput in bytes per second. Zero disables it.
	RateLimit int64

	// Progress receives byte counts. Default: progress.Nop.
	Progress progress.Reporter

	// Logger receives retry notices. Default: zap.NewNop().
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 4,
		Timeout:             30 * time.Second,
		RetryAttempts:       RetryForever,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     30 * time.Second,
		ChunkSize:           1024,
	}
}

// Client fetches corpus archives one at a time over a shared connection pool.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a new transfer client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 4
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1024
	}
	if opts.RetryMaxBackoff < opts.RetryBackoff {
		opts.RetryMaxBackoff = opts.RetryBackoff
	}
	if opts.Progress == nil {
		opts.Progress = progress.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		DisableCompression:    true, // archives are stored byte for byte
	}

	c := &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}

	if opts.RateLimit > 0 {
		burst := max(int(opts.RateLimit), opts.ChunkSize)
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return c
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// Fetch downloads url into memory.
func (c *Client) Fetch(ctx context.Context, url, label string) ([]byte, error) {
	dst := &memoryDestination{}
	if _, err := c.FetchTo(ctx, url, label, dst); err != nil {
		return nil, err
	}
	return dst.buf.Bytes(), nil
}

// FetchTo streams url into dst and returns the number of bytes written.
// Each attempt gets a fresh writer from dst; failed attempts are discarded.
func (c *Client) FetchTo(ctx context.Context, url, label string, dst Destination) (int64, error) {
	// A GET without a body can be sent again as is.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	var lastErr error
	attempts := 0

	for attempt := 0; c.opts.RetryAttempts < 0 || attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return 0, err
			}
		}

		attempts++
		n, err := c.attempt(ctx, req, label, dst)
		if err == nil {
			return n, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if !IsRetryable(err) {
			return 0, err
		}

		lastErr = err
		c.opts.Logger.Debug("transfer attempt failed",
			zap.String("label", label),
			zap.String("url", url),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
	}

	return 0, &TransportError{URL: url, Attempts: attempts, Err: lastErr}
}

// attempt performs a single GET and copies the body into a new writer
// from dst.
func (c *Client) attempt(ctx context.Context, req *http.Request, label string, dst Destination) (int64, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &StatusError{
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := dst.Create(attemptCtx)
	if err != nil {
		return 0, &WriteError{Err: err}
	}

	c.opts.Progress.Start(label, resp.ContentLength)
	n, err := c.copy(ctx, w, resp.Body)
	c.opts.Progress.Finish()

	if err == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		err = fmt.Errorf("short body: got %d of %d bytes: %w", n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	if err != nil {
		cancel()
		w.Close()
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, &WriteError{Err: err}
	}
	return n, nil
}

// copy moves r into w one chunk at a time.
func (c *Client) copy(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, c.opts.ChunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if c.limiter != nil {
				if err := c.limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return written, &WriteError{Err: err}
			}
			written += int64(n)
			c.opts.Progress.Advance(int64(n))
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// delay returns the un-jittered wait before attempt: RetryBackoff doubled
// per earlier retry, capped at RetryMaxBackoff.
func (c *Client) delay(attempt int) time.Duration {
	d := c.opts.RetryBackoff
	for i := 1; i < attempt && d < c.opts.RetryMaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.opts.RetryMaxBackoff)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	if c.opts.RetryBackoff <= 0 {
		return ctx.Err()
	}

	backoff := c.delay(attempt)

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// memoryDestination collects the body of the latest attempt.
type memoryDestination struct {
	buf bytes.Buffer
}

func (m *memoryDestination) Create(context.Context) (io.WriteCloser, error) {
	m.buf.Reset()
	return nopWriteCloser{&m.buf}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
