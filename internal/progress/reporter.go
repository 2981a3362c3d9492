package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Reporter receives byte counts from a single transfer at a time.
type Reporter interface {
	// Start begins a transfer. total is -1 when the size is unknown.
	Start(label string, total int64)
	// Advance records n more bytes received.
	Advance(n int64)
	// Finish ends the current transfer, successful or not.
	Finish()
}

// Mode selects a Reporter implementation.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeBar   Mode = "bar"
	ModeLines Mode = "lines"
	ModeNone  Mode = "none"
)

// ParseMode parses a mode name. The empty string selects ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeBar, ModeLines, ModeNone:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("progress: unknown mode %q", s)
	}
}

// New returns a Reporter for mode writing to w. ModeAuto picks a bar when
// w is a terminal and periodic lines otherwise.
func New(mode Mode, w io.Writer) Reporter {
	switch mode {
	case ModeNone:
		return Nop{}
	case ModeBar:
		return NewBar(w)
	case ModeLines:
		return NewLines(Options{Output: w})
	}

	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return NewBar(w)
	}
	return NewLines(Options{Output: w, UpdateInterval: 5 * time.Second})
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(string, int64) {}
func (Nop) Advance(int64)       {}
func (Nop) Finish()             {}

// Options configures the line reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to print a status line.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Lines prints a status line per interval for the running transfer.
type Lines struct {
	opts Options

	mu         sync.Mutex
	label      string
	total      int64
	completed  atomic.Int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	running    bool
}

// NewLines creates a line reporter.
func NewLines(opts Options) *Lines {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	return &Lines{opts: opts}
}

// Start prints the header and begins periodic updates. A transfer still
// running is finished first.
func (r *Lines) Start(label string, total int64) {
	r.Finish()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.label = label
	r.total = total
	r.completed.Store(0)
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.lastBytes = 0
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true

	if total >= 0 {
		fmt.Fprintf(r.opts.Output, "[crawler] Downloading: %s (%s)\n", label, FormatBytes(total))
	} else {
		fmt.Fprintf(r.opts.Output, "[crawler] Downloading: %s\n", label)
	}

	go r.updateLoop(r.stopCh, r.doneCh)
}

// Advance records received bytes.
func (r *Lines) Advance(n int64) {
	r.completed.Add(n)
}

// Finish stops updates and prints the final line. Safe to call when idle.
func (r *Lines) Finish() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (r *Lines) updateLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Lines) printProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	completed := r.completed.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	if r.total <= 0 {
		fmt.Fprintf(r.opts.Output, "[crawler] %s: %s | Speed: %s/s\n",
			r.label, FormatBytes(completed), FormatBytes(int64(speed)))
		return
	}

	percent := float64(completed) / float64(r.total) * 100
	eta := "calculating..."
	if speed > 0 {
		remaining := float64(r.total - completed)
		eta = formatDuration(time.Duration(remaining / speed * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "[crawler] %s: %.1f%% | %s / %s | Speed: %s/s | ETA: %s\n",
		r.label,
		percent,
		FormatBytes(completed),
		FormatBytes(r.total),
		FormatBytes(int64(speed)),
		eta,
	)
}

func (r *Lines) printFinalStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()

	completed := r.completed.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "[crawler] %s: %s in %s | Average speed: %s/s\n",
		r.label,
		FormatBytes(completed),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats b using IEC units (KiB, MiB, ...).
func FormatBytes(b int64) string {
	if b < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable size such as "256MiB" or "10MB".
// IEC suffixes are powers of 1024, SI suffixes powers of 1000.
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	return int64(n), nil
}
