// Package progress wraps the terminal progress bar used to report build
// activity. A nil-configured bar is a no-op, so callers never need to guard
// their Add calls.
package progress

import (
	"github.com/schollz/progressbar/v3"
)

// Bar reports incremental progress for one build activity (modules built,
// assets emitted). The zero value and Null() are inert.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar with an indeterminate total that renders to stderr.
func New(description string) *Bar {
	return &Bar{
		bar: progressbar.NewOptions64(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(true),
		),
	}
}

// Null returns a bar that swallows all updates. Used when progress output is
// disabled or the process is not attached to a terminal.
func Null() *Bar {
	return &Bar{}
}

func (b *Bar) Add(n int) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

// ChangeMax raises the bar total once the amount of work is known.
func (b *Bar) ChangeMax(n int) {
	if b == nil || b.bar == nil {
		return
	}
	b.bar.ChangeMax(n)
}

func (b *Bar) Finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}
