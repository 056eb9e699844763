package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress counts the fragments a reembedding run has stored and the ones
// it failed to re-embed, and writes a status line every reportInterval
// fragments. It is safe for concurrent use.
type Progress struct {
	mu             sync.Mutex
	writer         io.Writer
	total          int
	stored         int
	failed         int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
}

// NewProgress creates a Progress for total fragments. A reportInterval
// below one reports after every batch.
func NewProgress(writer io.Writer, total, reportInterval int) *Progress {
	if writer == nil {
		writer = io.Discard
	}
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &Progress{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start resets the counts and the clock.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.stored = 0
	p.failed = 0
	p.lastReported = 0
}

// Stored records n fragments written with a new vector.
func (p *Progress) Stored(n int) {
	p.add(n, 0)
}

// Failed records n fragments that kept their old vector.
func (p *Progress) Failed(n int) {
	p.add(0, n)
}

func (p *Progress) add(stored, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.stored += stored
	p.failed += failed

	if p.done()-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.done()
	}
}

// Counts returns the stored and failed totals so far.
func (p *Progress) Counts() (stored, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stored, p.failed
}

// Finish writes the final status line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *Progress) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

func (p *Progress) done() int {
	return min(p.stored+p.failed, p.total)
}

// report must be called with the lock held.
func (p *Progress) report() {
	done := p.done()
	rate := float64(done) / time.Since(p.startTime).Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(done) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) stored=%d failed=%d - %.1f fragments/s",
		done, p.total, percentage, p.stored, p.failed, rate)
}
