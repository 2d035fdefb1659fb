package parser

import (
	"strconv"
	"strings"
	"time"
)

// Reading is the result of parsing a single device line. Nil fields mean
// the line carried no usable value of that kind. Malformed lines degrade
// to an empty Reading, never an error: noise on a live serial link is
// expected.
type Reading struct {
	Pulses *int
	Force  *float64
}

// Parser translates raw device lines into readings. It carries the most
// recent force value across calls so that position-only lines can be
// paired with the last known load-cell reading. A Parser instance is not
// safe for concurrent use; the ingest coordinator drives exactly one
// instance from the reader goroutine.
type Parser struct {
	currentForce   float64
	forceTimestamp time.Time
}

func New() *Parser {
	return &Parser{}
}

var forcePrefixes = []string{"force=", "weight=", "load="}

// Parse parses one trimmed device line.
//
// Recognized forms, in precedence order:
//  1. force-only lines: "force=1.25kg", "weight=0.8", "load=2kg"
//  2. position lines:   "Pos=12345", optionally with an inline force
//     token: "Pos=12345 cps=10.5 force=1.2kg"
//
// Anything else yields an empty Reading.
func (p *Parser) Parse(line string) Reading {
	line = strings.TrimSpace(line)
	low := strings.ToLower(line)

	if isForceOnly(low) {
		force, ok := parseForceValue(line[strings.Index(line, "=")+1:])
		if !ok {
			return Reading{}
		}
		p.setForce(force)
		return Reading{Force: &force}
	}

	if strings.HasPrefix(line, "Pos=") {
		pulses, ok := parsePulses(line)
		if !ok {
			return Reading{}
		}

		force := p.currentForce
		if inline, ok := inlineForce(line); ok {
			p.setForce(inline)
			force = inline
		}

		return Reading{Pulses: &pulses, Force: &force}
	}

	return Reading{}
}

// CurrentForce returns the most recent force reading, 0 before any force
// line has been seen.
func (p *Parser) CurrentForce() float64 {
	return p.currentForce
}

// ForceTimestamp returns when the carried force value was last updated.
func (p *Parser) ForceTimestamp() time.Time {
	return p.forceTimestamp
}

func (p *Parser) setForce(force float64) {
	p.currentForce = force
	p.forceTimestamp = time.Now()
}

func isForceOnly(low string) bool {
	if strings.HasPrefix(low, "pos=") {
		return false
	}
	for _, prefix := range forcePrefixes {
		if strings.HasPrefix(low, prefix) {
			return true
		}
	}
	return false
}

// parseForceValue parses a force field value, stripping an optional
// trailing "kg" unit suffix. The decimal separator is always ".".
func parseForceValue(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if kg := strings.ToLower(value); strings.HasSuffix(kg, "kg") {
		value = strings.TrimSpace(value[:len(value)-2])
	}

	force, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return force, true
}

// parsePulses extracts the integer pulse count from the first
// whitespace-delimited token of a "Pos=<int>" line.
func parsePulses(line string) (int, bool) {
	token := line
	if i := strings.IndexFunc(line, isSpace); i >= 0 {
		token = line[:i]
	}

	_, value, found := strings.Cut(token, "=")
	if !found {
		return 0, false
	}

	pulses, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return pulses, true
}

// inlineForce finds a force=<float>[kg] token anywhere in a position line.
func inlineForce(line string) (float64, bool) {
	for _, token := range strings.Fields(line) {
		if !strings.HasPrefix(strings.ToLower(token), "force=") {
			continue
		}
		return parseForceValue(token[len("force="):])
	}
	return 0, false
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
