package security

import (
	"sync"
	"time"
)

// DetectorConfig tunes the escalation detector. Zero values fall back to the
// defaults below.
type DetectorConfig struct {
	Window    time.Duration
	Threshold int
	Cooldown  time.Duration
}

const (
	defaultWindow    = 60 * time.Second
	defaultThreshold = 3
	defaultCooldown  = 600 * time.Second
)

// EscalationDetector keeps sliding-window counts of authorization denials and
// safety blocks. A burst of either kind past the threshold warrants tightening
// the security mode. Both kinds share one cooldown clock so escalations cannot
// storm, but their windows are counted independently.
type EscalationDetector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	cooldown  time.Duration

	denials []time.Time
	blocks  []time.Time

	lastEscalation time.Time

	now func() time.Time
}

// NewEscalationDetector builds a detector from cfg, applying defaults for
// unset fields.
func NewEscalationDetector(cfg DetectorConfig) *EscalationDetector {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &EscalationDetector{
		window:    cfg.Window,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// RecordDenial records an authorization-denial event at the current time.
func (d *EscalationDetector) RecordDenial() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denials = append(d.denials, d.now())
}

// RecordBlock records a safety-block event at the current time.
func (d *EscalationDetector) RecordBlock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks = append(d.blocks, d.now())
}

// ShouldEscalate reports whether either event kind has reached the threshold
// inside the window. The prune, the threshold check, and the cooldown stamp
// happen under one lock so concurrent bursts observe at-least-one escalation,
// never zero. A true result stamps the shared cooldown; further calls inside
// the cooldown return false without touching the buffers.
func (d *EscalationDetector) ShouldEscalate() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if !d.lastEscalation.IsZero() && now.Sub(d.lastEscalation) < d.cooldown {
		return false
	}

	d.denials = pruneBefore(d.denials, now.Add(-d.window))
	d.blocks = pruneBefore(d.blocks, now.Add(-d.window))

	if len(d.denials) >= d.threshold || len(d.blocks) >= d.threshold {
		d.lastEscalation = now
		return true
	}
	return false
}

// Reset clears both buffers and the cooldown stamp. Only used to isolate
// tests; nothing in the pipeline calls it.
func (d *EscalationDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denials = nil
	d.blocks = nil
	d.lastEscalation = time.Time{}
}

func pruneBefore(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
