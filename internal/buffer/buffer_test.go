package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by a fixed step on every reading.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func newTestLog(step time.Duration) *Log {
	l := NewLog()
	clock := &fakeClock{now: time.Unix(1000, 0), step: step}
	l.now = clock.Now
	return l
}

func TestAddFirstSample(t *testing.T) {
	t.Parallel()

	l := newTestLog(10 * time.Millisecond)
	s := l.Add(500, nil)

	assert.Equal(t, 500, s.Pulses)
	assert.Equal(t, 0, s.Delta, "first sample has delta 0")
	assert.InDelta(t, 0.0, s.Time, 1e-9, "first sample establishes time zero")
	assert.Nil(t, s.Force)
	assert.Equal(t, 1, l.Count())
}

func TestAddDeltas(t *testing.T) {
	t.Parallel()

	l := newTestLog(10 * time.Millisecond)
	pulses := []int{100, 150, 140, 140, -20}

	for _, p := range pulses {
		l.Add(p, nil)
	}

	samples := l.Snapshot()
	require.Len(t, samples, len(pulses))
	assert.Equal(t, 0, samples[0].Delta)
	for i := 1; i < len(samples); i++ {
		assert.Equal(t, samples[i].Pulses-samples[i-1].Pulses, samples[i].Delta,
			"delta at index %d", i)
		assert.GreaterOrEqual(t, samples[i].Time, samples[i-1].Time,
			"relative time must not decrease")
	}
}

func TestAddCopiesForce(t *testing.T) {
	t.Parallel()

	l := newTestLog(time.Millisecond)
	force := 2.5
	s := l.Add(10, &force)

	force = 99
	require.NotNil(t, s.Force)
	assert.InDelta(t, 2.5, *s.Force, 1e-9, "sample must not alias the caller's value")

	snap := l.Snapshot()
	require.NotNil(t, snap[0].Force)
	assert.InDelta(t, 2.5, *snap[0].Force, 1e-9)
}

func TestClearRestartsSession(t *testing.T) {
	t.Parallel()

	l := newTestLog(50 * time.Millisecond)
	l.Add(100, nil)
	l.Add(200, nil)
	require.Equal(t, 2, l.Count())

	l.Clear()
	assert.Equal(t, 0, l.Count())
	assert.Empty(t, l.Snapshot())

	// Clear is idempotent.
	l.Clear()

	s := l.Add(5000, nil)
	assert.Equal(t, 0, s.Delta, "post-clear series is independent of the old one")
	assert.InDelta(t, 0.0, s.Time, 1e-9, "relative time restarts at zero")
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	l := newTestLog(time.Millisecond)
	l.Add(1, nil)

	snap := l.Snapshot()
	l.Add(2, nil)
	assert.Len(t, snap, 1, "mutations after Snapshot are invisible in the copy")

	snap[0].Pulses = 777
	assert.Equal(t, 1, l.Snapshot()[0].Pulses, "mutating the copy leaves the log intact")
}

func TestRecent(t *testing.T) {
	t.Parallel()

	l := newTestLog(time.Millisecond)
	for i := 0; i < 10; i++ {
		l.Add(i, nil)
	}

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, 7, recent[0].Pulses)
	assert.Equal(t, 9, recent[2].Pulses, "most recent sample is always included")

	assert.Len(t, l.Recent(100), 10, "capped at the sample count")
	assert.Empty(t, l.Recent(0))
	assert.Empty(t, l.Recent(-1))
}

func TestConcurrentAddAndSnapshot(t *testing.T) {
	t.Parallel()

	l := NewLog()
	const writes = 2000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			l.Add(i, nil)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for j, s := range l.Snapshot() {
				// A snapshot never observes a half-written sample.
				assert.Equal(t, j, s.Pulses)
			}
			l.Recent(50)
			l.Count()
		}
	}()

	wg.Wait()
	assert.Equal(t, writes, l.Count())
}

func TestCompositeLogAdd(t *testing.T) {
	t.Parallel()

	l := NewCompositeLog()
	clock := &fakeClock{now: time.Unix(2000, 0), step: 5 * time.Millisecond}
	l.now = clock.Now

	s, ok := l.Add("12345", "123.45", "456.78")
	require.True(t, ok)
	assert.InDelta(t, 0.0, s.TimeMs, 1e-9)
	assert.Equal(t, "12345", s.Pos)

	s, ok = l.Add("", "", "456.78")
	require.True(t, ok, "one present key is enough")
	assert.InDelta(t, 5.0, s.TimeMs, 1e-9)
	assert.Empty(t, s.Pos)

	_, ok = l.Add("", "", "")
	assert.False(t, ok, "all-empty rows are dropped")
	assert.Equal(t, 2, l.Count())
}

func TestCompositeLogTimeZeroFromFirstLine(t *testing.T) {
	t.Parallel()

	l := NewCompositeLog()
	clock := &fakeClock{now: time.Unix(2000, 0), step: 10 * time.Millisecond}
	l.now = clock.Now

	// An invalid first line still establishes time zero.
	_, ok := l.Add("", "", "")
	require.False(t, ok)

	s, ok := l.Add("1", "", "")
	require.True(t, ok)
	assert.InDelta(t, 10.0, s.TimeMs, 1e-9)
}

func TestCompositeLogClearAndRecent(t *testing.T) {
	t.Parallel()

	l := NewCompositeLog()
	for i := 0; i < 5; i++ {
		l.Add("1", "2", "3")
	}

	recent := l.Recent(2)
	assert.Len(t, recent, 2)

	l.Clear()
	assert.Equal(t, 0, l.Count())
	assert.Empty(t, l.Recent(10))
}
