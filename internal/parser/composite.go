package parser

import "strings"

// CompositeReading is one line of the alternate firmware grammar, which
// emits position, counts-per-second and RPM as independent key=value
// tokens: "Pos=12345 CPS=123.45 RPM=456.78". Values are kept verbatim;
// an empty field means the key was absent from the line.
type CompositeReading struct {
	Pos string
	CPS string
	RPM string
}

// ParseComposite parses a composite line. Keys are matched
// case-insensitively and unknown tokens are ignored. The reading is
// valid when at least one of the three keys carried a value; composite
// parsing has no cross-call state.
func ParseComposite(line string) (CompositeReading, bool) {
	var r CompositeReading

	for _, token := range strings.Fields(strings.TrimSpace(line)) {
		key, value, found := strings.Cut(token, "=")
		if !found {
			continue
		}
		switch strings.ToUpper(key) {
		case "POS":
			r.Pos = value
		case "CPS":
			r.CPS = value
		case "RPM":
			r.RPM = value
		}
	}

	return r, r.Pos != "" || r.CPS != "" || r.RPM != ""
}
