// pkg/progress/progress.go - byte progress reporting for downloads

package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/windowsadmins/get/pkg/logging"
)

// Func receives the bytes transferred so far and the expected total after every chunk.
type Func func(transferred, total int64)

// Bar renders a single-line text progress bar. Transfers drawn on the same
// bar must not overlap.
type Bar struct {
	mu       sync.Mutex
	out      io.Writer
	name     string
	width    int
	interval time.Duration
	last     time.Time
	started  time.Time
	now      func() time.Time
}

// NewBar creates a bar labelled name writing to out.
func NewBar(out io.Writer, name string) *Bar {
	return &Bar{
		out:      out,
		name:     name,
		width:    40,
		interval: 200 * time.Millisecond, // redraw at most five times a second
		now:      time.Now,
	}
}

// Update redraws the bar. Redraws are throttled except for the final one.
func (b *Bar) Update(transferred, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.started.IsZero() {
		b.started = now
	}
	done := total > 0 && transferred >= total
	if !done && now.Sub(b.last) < b.interval {
		return
	}
	b.last = now

	fmt.Fprintf(b.out, "\r%s", b.render(transferred, total, now.Sub(b.started)))
	if done {
		fmt.Fprintln(b.out)
		// the next transfer starts its own clock
		b.started = time.Time{}
	}
}

// Func adapts the bar to a progress callback.
func (b *Bar) Func() Func {
	return b.Update
}

func (b *Bar) render(transferred, total int64, elapsed time.Duration) string {
	percentage := 0
	if total > 0 {
		percentage = int(transferred * 100 / total)
		if percentage > 100 {
			percentage = 100
		}
	}
	filled := percentage * b.width / 100

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < b.width; i++ {
		switch {
		case i < filled:
			bar.WriteRune('█')
		case i == filled && percentage < 100:
			bar.WriteRune('▌')
		default:
			bar.WriteRune('·')
		}
	}
	bar.WriteString("]")

	speed := ""
	if secs := elapsed.Seconds(); secs > 0 {
		speed = " " + FormatSpeed(float64(transferred)/secs)
	}
	return fmt.Sprintf("%s %s %3d%% %s / %s%s", b.name, bar.String(), percentage,
		FormatBytes(transferred), FormatBytes(total), speed)
}

// Log returns a callback that logs progress at DEBUG level in steps of ten percent.
func Log(name string) Func {
	var mu sync.Mutex
	lastDecile := -1
	return func(transferred, total int64) {
		if total <= 0 {
			return
		}
		decile := int(transferred * 10 / total)
		mu.Lock()
		defer mu.Unlock()
		if decile == lastDecile {
			return
		}
		lastDecile = decile
		logging.Debug("Download progress", "file", name, "percent", decile*10,
			"bytes", transferred, "total", total)
	}
}

// Multi fans one progress callback out to several.
func Multi(fns ...Func) Func {
	return func(transferred, total int64) {
		for _, fn := range fns {
			if fn != nil {
				fn(transferred, total)
			}
		}
	}
}

// FormatBytes formats byte counts in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed formats a transfer rate.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	default:
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	}
}
