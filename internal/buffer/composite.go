package buffer

import (
	"sync"
	"time"
)

// CompositeSample is one row of the alternate firmware grammar: raw
// position, counts-per-second and RPM values with a relative timestamp
// in milliseconds. Values are verbatim strings; empty means the key was
// absent from the line.
type CompositeSample struct {
	TimeMs float64 `json:"t_ms"          csv:"time_ms"`
	Pos    string  `json:"pos,omitempty" csv:"pos"`
	CPS    string  `json:"cps,omitempty" csv:"cps"`
	RPM    string  `json:"rpm,omitempty" csv:"rpm"`
}

// CompositeLog buffers composite grammar rows. Unlike Log it derives
// nothing: no deltas, no force carry. Time zero is the first line ever
// seen by the log, valid or not.
type CompositeLog struct {
	mu        sync.Mutex
	samples   []CompositeSample
	startTime time.Time
	now       func() time.Time
}

func NewCompositeLog() *CompositeLog {
	return &CompositeLog{now: time.Now}
}

// Add records a row for the given field values. The row is dropped (and
// false returned) when all three fields are empty, but the line still
// establishes time zero on first call.
func (l *CompositeLog) Add(pos, cps, rpm string) (CompositeSample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.startTime.IsZero() {
		l.startTime = now
	}

	if pos == "" && cps == "" && rpm == "" {
		return CompositeSample{}, false
	}

	s := CompositeSample{
		TimeMs: float64(now.Sub(l.startTime)) / float64(time.Millisecond),
		Pos:    pos,
		CPS:    cps,
		RPM:    rpm,
	}
	l.samples = append(l.samples, s)

	return s, true
}

// Clear empties the log and resets time zero. Idempotent.
func (l *CompositeLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = nil
	l.startTime = time.Time{}
}

// Recent returns a copy of the last max rows in insertion order.
func (l *CompositeLog) Recent(max int) []CompositeSample {
	l.mu.Lock()
	defer l.mu.Unlock()

	if max < 0 {
		max = 0
	}
	start := len(l.samples) - max
	if start < 0 {
		start = 0
	}

	out := make([]CompositeSample, len(l.samples)-start)
	copy(out, l.samples[start:])

	return out
}

// Count returns the number of buffered rows.
func (l *CompositeLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.samples)
}
