package buffer

import (
	"sync"
	"time"
)

// Sample is one measurement event derived from a position reading.
type Sample struct {
	Time   float64  `json:"t"               csv:"time_s"`
	Pulses int      `json:"pulses"          csv:"pulses"`
	Delta  int      `json:"delta"           csv:"delta"`
	Force  *float64 `json:"force,omitempty" csv:"force_kg"`
}

// Log is an append-only, thread-safe sample log. Time is recorded
// relative to the first sample of the session and deltas are derived
// from the previous pulse count. The reader goroutine appends while
// display and export collaborators take snapshots on their own schedule.
type Log struct {
	mu         sync.Mutex
	samples    []Sample
	lastPulses *int
	startTime  time.Time
	now        func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// Add derives and appends a sample for the given absolute pulse count.
// The first sample after construction or Clear establishes time zero and
// has a delta of 0.
func (l *Log) Add(pulses int, force *float64) Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.startTime.IsZero() {
		l.startTime = now
	}

	delta := 0
	if l.lastPulses != nil {
		delta = pulses - *l.lastPulses
	}
	last := pulses
	l.lastPulses = &last

	s := Sample{
		Time:   now.Sub(l.startTime).Seconds(),
		Pulses: pulses,
		Delta:  delta,
	}
	if force != nil {
		f := *force
		s.Force = &f
	}

	l.samples = append(l.samples, s)

	return s
}

// Clear empties the log and resets session state so the next Add starts
// a fresh series at time zero with a delta of 0. Idempotent.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = nil
	l.lastPulses = nil
	l.startTime = time.Time{}
}

// Snapshot returns an independent copy of all samples.
func (l *Log) Snapshot() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Sample, len(l.samples))
	copy(out, l.samples)

	return out
}

// Recent returns a copy of the last max samples in insertion order, or
// all samples if fewer exist.
func (l *Log) Recent(max int) []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	if max < 0 {
		max = 0
	}
	start := len(l.samples) - max
	if start < 0 {
		start = 0
	}

	out := make([]Sample, len(l.samples)-start)
	copy(out, l.samples[start:])

	return out
}

// Count returns the number of buffered samples.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.samples)
}
