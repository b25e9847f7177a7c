package application

import "time"

// DefaultDebounceWindow is how long an accepted code is ignored when scanned
// again on the same channel.
const DefaultDebounceWindow = 2 * time.Second

// Debouncer suppresses repeated scans of the same code. It is not safe for
// concurrent use; the orchestrator calls it under its lock.
type Debouncer struct {
	window time.Duration
	now    func() time.Time
	last   map[string]acceptedScan
}

type acceptedScan struct {
	code string
	at   time.Time
}

// NewDebouncer creates a Debouncer. A non-positive window disables it.
func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{window: window, now: now, last: make(map[string]acceptedScan)}
}

// Duplicate reports whether code was accepted on channel within the window.
func (d *Debouncer) Duplicate(channel, code string) bool {
	if d.window <= 0 {
		return false
	}
	prev, ok := d.last[channel]
	if !ok || prev.code != code {
		return false
	}
	return d.now().Sub(prev.at) < d.window
}

// Accept records code as the latest accepted scan on channel.
func (d *Debouncer) Accept(channel, code string) {
	d.last[channel] = acceptedScan{code: code, at: d.now()}
}

// Forget drops the accepted scan on channel.
func (d *Debouncer) Forget(channel string) {
	delete(d.last, channel)
}

// Reset forgets every accepted scan.
func (d *Debouncer) Reset() {
	clear(d.last)
}
