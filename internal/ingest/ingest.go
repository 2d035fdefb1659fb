package ingest

import (
	"sync/atomic"

	"codeberg.org/mutker/encoderctl/internal/buffer"
	"codeberg.org/mutker/encoderctl/internal/logger"
	"codeberg.org/mutker/encoderctl/internal/parser"
)

// Grammar selects which wire grammar the coordinator expects from the
// device firmware.
type Grammar string

const (
	// GrammarEncoder is the primary grammar: "Pos=<int>" position lines
	// with optional inline force, plus standalone force/weight/load
	// lines.
	GrammarEncoder Grammar = "encoder"
	// GrammarRaw is the alternate firmware grammar: one composite
	// "Pos=... CPS=... RPM=..." line per sample, recorded verbatim.
	GrammarRaw Grammar = "raw"
)

// Coordinator gates the line stream from the serial supervisor into the
// sample log. While paused, lines are discarded without being parsed;
// the connection itself stays open. HandleLine is driven by the reader
// goroutine, the control methods by consumers.
type Coordinator struct {
	grammar   Grammar
	parser    *parser.Parser
	log       *buffer.Log
	composite *buffer.CompositeLog
	onSample  func(buffer.Sample)
	running   atomic.Bool
	dropped   atomic.Uint64
}

func NewCoordinator(grammar Grammar, log *buffer.Log, composite *buffer.CompositeLog) *Coordinator {
	return &Coordinator{
		grammar:   grammar,
		parser:    parser.New(),
		log:       log,
		composite: composite,
	}
}

// HandleLine is the callback registered with the serial supervisor.
func (c *Coordinator) HandleLine(line string) {
	if !c.running.Load() {
		c.dropped.Add(1)
		return
	}

	if c.grammar == GrammarRaw {
		r, ok := parser.ParseComposite(line)
		if !ok {
			return
		}
		c.composite.Add(r.Pos, r.CPS, r.RPM)
		return
	}

	r := c.parser.Parse(line)
	if r.Pulses == nil {
		// Force-only lines update the parser's carried value but never
		// create a sample; unrecognized lines are expected noise.
		return
	}

	s := c.log.Add(*r.Pulses, r.Force)
	logger.Debug().
		Float64("t", s.Time).
		Int("pulses", s.Pulses).
		Int("delta", s.Delta).
		Msg("Sample recorded")

	if c.onSample != nil {
		c.onSample(s)
	}
}

// SetSampleHook registers a callback invoked from the reader goroutine
// for every recorded sample. Must be set before ingestion starts.
func (c *Coordinator) SetSampleHook(fn func(buffer.Sample)) {
	c.onSample = fn
}

// Start enables sample recording.
func (c *Coordinator) Start() {
	c.running.Store(true)
}

// Pause suspends sample recording without touching the connection.
func (c *Coordinator) Pause() {
	c.running.Store(false)
}

// Running reports whether samples are being recorded.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Dropped returns how many lines were discarded while paused.
func (c *Coordinator) Dropped() uint64 {
	return c.dropped.Load()
}

// Grammar returns the wire grammar this coordinator was built for.
func (c *Coordinator) Grammar() Grammar {
	return c.grammar
}
