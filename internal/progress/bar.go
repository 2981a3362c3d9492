package progress

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar renders an interactive progress bar for the running transfer.
type Bar struct {
	w io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewBar creates a bar reporter writing to w.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

// Start replaces any running bar with a new one for label.
func (b *Bar) Start(label string, total int64) {
	b.Finish()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

// Advance moves the bar forward by n bytes.
func (b *Bar) Advance(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Add64(n)
	}
}

// Finish clears the bar.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	b.bar = nil
}
