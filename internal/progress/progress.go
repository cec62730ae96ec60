package progress

import (
	"fmt"
	"io"
	"os"
	"time"
)

// ProgressBar shows how many bytes of a memory transfer are done
type ProgressBar struct {
	total       int64
	current     int64
	startTime   time.Time
	lastUpdate  time.Time
	output      io.Writer
	enabled     bool
	description string
}

// NewProgressBar creates a bar for a transfer of total bytes
func NewProgressBar(total int64, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		output:      os.Stderr, // keep stdout for command output
		enabled:     true,
		description: description,
	}
}

// SetOutput redirects the bar.
func (p *ProgressBar) SetOutput(w io.Writer) {
	p.output = w
}

// Disable disables the progress bar
func (p *ProgressBar) Disable() {
	p.enabled = false
}

// Set sets the number of bytes done
func (p *ProgressBar) Set(n int64) {
	p.current = n
	p.render()
}

// Update adds n bytes
func (p *ProgressBar) Update(n int64) {
	p.current += n
	p.render()
}

// Callback returns a function suitable as a session progress callback.
// The total reported by the caller replaces the initial total.
func (p *ProgressBar) Callback() func(done, total int) {
	return func(done, total int) {
		p.total = int64(total)
		p.Set(int64(done))
	}
}

func (p *ProgressBar) render() {
	if !p.enabled {
		return
	}

	now := time.Now()
	if now.Sub(p.lastUpdate) < 100*time.Millisecond && p.current < p.total {
		return
	}
	p.lastUpdate = now

	var percent float64
	if p.total > 0 {
		percent = float64(p.current) / float64(p.total) * 100
	}
	elapsed := time.Since(p.startTime)

	const barWidth = 40
	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}
	bar := make([]byte, barWidth)
	for i := range bar {
		switch {
		case i < filled:
			bar[i] = '='
		case i == filled:
			bar[i] = '>'
		default:
			bar[i] = '-'
		}
	}

	output := fmt.Sprintf("\r[%s] %s/%s (%.1f%%)", string(bar), FormatBytes(p.current), FormatBytes(p.total), percent)
	if p.description != "" {
		output = "\r" + p.description + " " + output[1:]
	}
	if secs := elapsed.Seconds(); secs > 0 && p.current > 0 {
		output += fmt.Sprintf(" | %.1f kB/s", float64(p.current)/secs/1000)
	}
	output += " | " + formatDuration(elapsed)

	fmt.Fprint(p.output, output)
}

// Finish completes the bar
func (p *ProgressBar) Finish() {
	if !p.enabled {
		return
	}
	p.current = p.total
	p.lastUpdate = time.Time{}
	p.render()
	fmt.Fprint(p.output, "\n")
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// Counter reports a running count without a bar, such as benchmark
// iterations whose total depends on a time limit.
type Counter struct {
	output      io.Writer
	enabled     bool
	description string
	lastUpdate  time.Time
	interval    time.Duration
}

// NewCounter creates a counter printing at most once per interval
func NewCounter(description string, interval time.Duration) *Counter {
	return &Counter{
		output:      os.Stderr,
		enabled:     true,
		description: description,
		interval:    interval,
	}
}

// SetOutput redirects the counter.
func (c *Counter) SetOutput(w io.Writer) {
	c.output = w
}

// Disable turns the counter off
func (c *Counter) Disable() {
	c.enabled = false
}

// Update prints the count and an optional message
func (c *Counter) Update(count int64, message string) {
	if !c.enabled {
		return
	}
	now := time.Now()
	if now.Sub(c.lastUpdate) < c.interval {
		return
	}
	c.lastUpdate = now

	output := fmt.Sprintf("\r%s: %d", c.description, count)
	if message != "" {
		output += " | " + message
	}
	fmt.Fprint(c.output, output)
}

// Finish ends the counter line
func (c *Counter) Finish() {
	if !c.enabled {
		return
	}
	fmt.Fprint(c.output, "\n")
}
