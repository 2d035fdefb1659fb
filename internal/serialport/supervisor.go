package serialport

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/encoderctl/internal/errors"
	"codeberg.org/mutker/encoderctl/internal/logger"
	"go.bug.st/serial"
)

// State is the connection state of the supervisor.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// LineFunc receives every non-empty, trimmed line read from the device.
// It is invoked from the supervisor's reader goroutine.
type LineFunc func(line string)

const (
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultRetryBackoff = 500 * time.Millisecond

	readChunkSize = 1024
	// Lines longer than this cannot come from the device; discard the
	// oldest bytes rather than growing without bound on a noisy link.
	maxPendingBytes = 64 * 1024
)

type Config struct {
	ReadTimeout  time.Duration
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:  DefaultReadTimeout,
		RetryBackoff: DefaultRetryBackoff,
	}
}

// Supervisor owns the physical serial link. Once started it keeps a
// dedicated reader goroutine alive until Stop: open failures and
// mid-stream read errors are retried after a fixed backoff and are never
// surfaced to the caller. Consumers only observe connection trouble as
// an absence of line callbacks and a non-connected State.
type Supervisor struct {
	cfg     Config
	factory PortFactory

	state atomic.Int32

	mu     sync.Mutex // guards port, cancel, done
	port   Port
	cancel context.CancelFunc
	done   chan struct{}

	writeMu sync.Mutex // serializes Send against the shared port
}

func NewSupervisor(cfg Config) *Supervisor {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Supervisor{
		cfg:     cfg,
		factory: DefaultPortFactory,
	}
}

// NewSupervisorWithFactory is used by tests to substitute the port.
func NewSupervisorWithFactory(cfg Config, factory PortFactory) *Supervisor {
	s := NewSupervisor(cfg)
	s.factory = factory
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Start launches the connect-read loop for the given device. It returns
// immediately; connection progress is observable through State. Starting
// an already started supervisor is an error.
func (s *Supervisor) Start(path string, baud int, onLine LineFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New().New(errors.ErrAlreadyRunning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state.Store(int32(Connecting))

	go s.run(ctx, done, path, baud, onLine)

	return nil
}

// Stop signals the reader goroutine, waits for it to release the port
// and transitions to Disconnected. Safe to call when never started or
// already stopped.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Send writes a single command line to the device and returns whether
// the write succeeded. It never blocks on reconnection: when no port is
// open it simply returns false.
func (s *Supervisor) Send(command string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return false
	}

	if _, err := port.Write([]byte(command + "\n")); err != nil {
		logger.Warn().Err(err).Str("command", command).Msg("Failed to write command to device")
		return false
	}

	return true
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}, path string, baud int, onLine LineFunc) {
	defer func() {
		s.state.Store(int32(Disconnected))
		close(done)
	}()

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	for ctx.Err() == nil {
		s.state.Store(int32(Connecting))

		port, err := s.factory(path, mode)
		if err != nil {
			logger.Debug().Err(err).Str("port", path).Msg("Open failed, retrying")
			if !sleepContext(ctx, s.cfg.RetryBackoff) {
				return
			}
			continue
		}

		if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
			logger.Warn().Err(err).Msg("Failed to set read timeout")
			_ = port.Close()
			if !sleepContext(ctx, s.cfg.RetryBackoff) {
				return
			}
			continue
		}

		s.setPort(port)
		s.state.Store(int32(Connected))
		logger.Info().Str("port", path).Int("baud", baud).Msg("Device connected")

		err = s.readLines(ctx, port, onLine)

		s.setPort(nil)
		_ = port.Close()

		if ctx.Err() != nil {
			return
		}

		logger.Warn().Err(err).Str("port", path).Msg("Read failed, reconnecting")
		if !sleepContext(ctx, s.cfg.RetryBackoff) {
			return
		}
	}
}

// readLines decodes the byte stream into lines and invokes the callback
// for every non-empty one. Partial lines spanning read boundaries are
// reassembled; bytes that do not form valid UTF-8 are dropped.
func (s *Supervisor) readLines(ctx context.Context, port Port, onLine LineFunc) error {
	buf := make([]byte, readChunkSize)
	var pending []byte

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			// Read timeout expired; loop to observe cancellation.
			continue
		}

		pending = append(pending, buf[:n]...)
		if len(pending) > maxPendingBytes {
			pending = pending[len(pending)-maxPendingBytes:]
		}

		for {
			idx := bytes.IndexAny(pending, "\r\n")
			if idx < 0 {
				break
			}

			raw := pending[:idx]
			pending = pending[idx+1:]

			line := strings.TrimSpace(string(bytes.ToValidUTF8(raw, nil)))
			if line != "" && onLine != nil {
				onLine(line)
			}
		}
	}
}

func (s *Supervisor) setPort(port Port) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
