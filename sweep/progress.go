package sweep

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints sweep progress to a writer.
// The total is an estimate; records added while a sweep runs may push the
// scanned count past it, in which case the percentage is capped.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	reportInterval int

	mu           sync.Mutex
	scanned      int
	changed      int
	lastReported int
	startTime    time.Time
	started      bool
}

// NewProgressTracker creates a tracker that reports every reportInterval records.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = DefaultPageSize
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Start resets the counters and records the expected total.
func (p *ProgressTracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.scanned = 0
	p.changed = 0
	p.lastReported = 0
	p.startTime = time.Now()
	p.started = true
}

// Add records one processed page.
func (p *ProgressTracker) Add(scanned, changed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.scanned += scanned
	p.changed += changed

	if p.scanned-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.scanned
	}
}

// Finish prints the final line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
	p.started = false
}

// Scanned returns the number of records seen so far.
func (p *ProgressTracker) Scanned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanned
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.scanned) / elapsed
	}

	percentage := 100.0
	if p.total > 0 && p.scanned < p.total {
		percentage = float64(p.scanned) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rScanned: %d/%d (%.1f%%) - %d changed - %.1f records/s",
		p.scanned, p.total, percentage, p.changed, rate)
}
