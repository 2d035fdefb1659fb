package serialport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

var errBroken = errors.New("device unplugged")

// mockPort replays scripted read chunks, then either fails with readErr
// or behaves like an idle port that keeps hitting its read timeout.
type mockPort struct {
	mu       sync.Mutex
	chunks   [][]byte
	readErr  error
	writeErr error
	written  bytes.Buffer
	closed   bool
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(m.chunks) > 0 {
		chunk := m.chunks[0]
		m.chunks = m.chunks[1:]
		n := copy(p, chunk)
		m.mu.Unlock()
		return n, nil
	}
	err := m.readErr
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}

	// Simulate a read timeout on an idle link.
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.written.Write(p)
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (*mockPort) SetReadTimeout(time.Duration) error {
	return nil
}

func (m *mockPort) sent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func testConfig() Config {
	return Config{
		ReadTimeout:  5 * time.Millisecond,
		RetryBackoff: 5 * time.Millisecond,
	}
}

func staticFactory(port *mockPort) PortFactory {
	return func(string, *serial.Mode) (Port, error) {
		return port, nil
	}
}

// lineCollector gathers callback lines for assertions.
type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestLinesReassembledAcrossChunks(t *testing.T) {
	t.Parallel()

	port := &mockPort{chunks: [][]byte{
		[]byte("Pos=1\nPos"),
		[]byte("=2\r\n"),
		[]byte("  force=1.0kg  \n\r\n"),
	}}
	s := NewSupervisorWithFactory(testConfig(), staticFactory(port))
	collector := &lineCollector{}

	require.NoError(t, s.Start("/dev/mock", 115200, collector.add))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(collector.get()) == 3
	}, time.Second, time.Millisecond)

	assert.Equal(t, []string{"Pos=1", "Pos=2", "force=1.0kg"}, collector.get(),
		"each line delivered exactly once, trimmed, never split at a chunk boundary")
}

func TestInvalidBytesDropped(t *testing.T) {
	t.Parallel()

	port := &mockPort{chunks: [][]byte{
		{'P', 'o', 's', '=', 0xFF, 0xFE, '4', '2', '\n'},
	}}
	s := NewSupervisorWithFactory(testConfig(), staticFactory(port))
	collector := &lineCollector{}

	require.NoError(t, s.Start("/dev/mock", 115200, collector.add))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(collector.get()) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, "Pos=42", collector.get()[0])
}

func TestOpenFailureRetries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	port := &mockPort{chunks: [][]byte{[]byte("Pos=7\n")}}
	factory := func(string, *serial.Mode) (Port, error) {
		if attempts.Add(1) <= 3 {
			return nil, errBroken
		}
		return port, nil
	}

	s := NewSupervisorWithFactory(testConfig(), factory)
	collector := &lineCollector{}

	require.NoError(t, s.Start("/dev/mock", 115200, collector.add))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, time.Millisecond, "must keep retrying until the open succeeds")

	require.Eventually(t, func() bool {
		return len(collector.get()) == 1
	}, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, attempts.Load(), int32(4))
}

func TestStopWhileRetrying(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	factory := func(string, *serial.Mode) (Port, error) {
		attempts.Add(1)
		return nil, errBroken
	}

	s := NewSupervisorWithFactory(testConfig(), factory)
	require.NoError(t, s.Start("/dev/mock", 115200, nil))

	require.Eventually(t, func() bool {
		return attempts.Load() >= 2
	}, time.Second, time.Millisecond, "loop retries indefinitely on open failure")

	s.Stop()
	assert.Equal(t, Disconnected, s.State())

	settled := attempts.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, settled, attempts.Load(), "no retries after Stop")
}

func TestReconnectAfterReadError(t *testing.T) {
	t.Parallel()

	first := &mockPort{chunks: [][]byte{[]byte("Pos=1\n")}, readErr: errBroken}
	second := &mockPort{chunks: [][]byte{[]byte("Pos=2\n")}}

	var opens atomic.Int32
	factory := func(string, *serial.Mode) (Port, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}

	s := NewSupervisorWithFactory(testConfig(), factory)
	collector := &lineCollector{}

	require.NoError(t, s.Start("/dev/mock", 115200, collector.add))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(collector.get()) == 2
	}, time.Second, time.Millisecond, "stream resumes on a fresh port after a read fault")

	assert.Equal(t, []string{"Pos=1", "Pos=2"}, collector.get())
	first.mu.Lock()
	assert.True(t, first.closed, "failed port must be released")
	first.mu.Unlock()
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(testConfig())
	s.Stop() // never started

	require.NoError(t, s.Start("/dev/mock", 115200, nil))
	s.Stop()
	s.Stop()
	assert.Equal(t, Disconnected, s.State())
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	port := &mockPort{}
	s := NewSupervisorWithFactory(testConfig(), staticFactory(port))

	require.NoError(t, s.Start("/dev/mock", 115200, nil))
	defer s.Stop()

	assert.Error(t, s.Start("/dev/mock", 115200, nil))
}

func TestSend(t *testing.T) {
	t.Parallel()

	port := &mockPort{}
	s := NewSupervisorWithFactory(testConfig(), staticFactory(port))

	assert.False(t, s.Send("zero"), "Send before Start returns false")

	require.NoError(t, s.Start("/dev/mock", 115200, nil))

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, time.Millisecond)

	assert.True(t, s.Send("zero"))
	assert.Equal(t, "zero\n", port.sent(), "commands are newline terminated")

	s.Stop()
	assert.False(t, s.Send("zero"), "Send after Stop returns false")
}

func TestSendWriteFailure(t *testing.T) {
	t.Parallel()

	port := &mockPort{writeErr: errBroken}
	s := NewSupervisorWithFactory(testConfig(), staticFactory(port))

	require.NoError(t, s.Start("/dev/mock", 115200, nil))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.State() == Connected
	}, time.Second, time.Millisecond)

	assert.False(t, s.Send("zero"), "write faults degrade to false, never panic")
}
