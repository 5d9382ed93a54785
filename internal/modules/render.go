package modules

import (
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
)

// textDoc accumulates a text artifact.
type textDoc struct {
	b strings.Builder
}

func (d *textDoc) comment(format string, args ...any) {
	d.b.WriteString("# ")
	fmt.Fprintf(&d.b, format, args...)
	d.b.WriteByte('\n')
}

func (d *textDoc) line(format string, args ...any) {
	fmt.Fprintf(&d.b, format, args...)
	d.b.WriteByte('\n')
}

func (d *textDoc) raw(s string) {
	d.b.WriteString(s)
}

// sciRow writes values in 16-column scientific notation.
func (d *textDoc) sciRow(values ...float64) {
	for _, v := range values {
		d.b.WriteString(artifact.FormatScientificPadded(v, 16, 7))
	}
	d.b.WriteByte('\n')
}

// fixedRow writes values in fixed notation with the given width and digits.
func (d *textDoc) fixedRow(width, digits int, values ...float64) {
	for _, v := range values {
		d.b.WriteString(artifact.FormatFixed(v, width, digits))
	}
	d.b.WriteByte('\n')
}

// intRow writes integers right-aligned in width columns.
func (d *textDoc) intRow(width int, values ...int) {
	for _, v := range values {
		fmt.Fprintf(&d.b, "%*d", width, v)
	}
	d.b.WriteByte('\n')
}

func (d *textDoc) String() string {
	return d.b.String()
}

// logDoc renders the common module log: fixture, input presence and a few
// key/value diagnostics.
type logDoc struct {
	textDoc
}

func newLog(title, fixtureID string, in *inputSet) *logDoc {
	l := &logDoc{}
	l.line(" %s", title)
	l.line(" fixture: %s", fixtureID)
	for _, name := range in.order {
		l.line(" input %-18s %8d bytes", name, len(in.files[name]))
	}
	for _, name := range in.missing {
		l.line(" input %-18s absent (optional)", name)
	}
	return l
}

func (l *logDoc) kv(key string, value any) {
	switch v := value.(type) {
	case float64:
		l.line(" %-24s %s", key+":", artifact.FormatScientific(v, 6))
	default:
		l.line(" %-24s %v", key+":", v)
	}
}

// seedSource drives deterministic synthesis from an input checksum.
type seedSource struct {
	sum uint64
}

// frac returns a stable value in [0, 1) for slot.
func (s seedSource) frac(slot uint) float64 {
	mixed := s.sum ^ (uint64(slot)+1)*0x9e3779b97f4a7c15
	mixed ^= mixed >> 29
	mixed *= 0xbf58476d1ce4e5b9
	mixed ^= mixed >> 32
	return float64(mixed>>11) / float64(1<<53)
}

// between maps slot onto [lo, hi).
func (s seedSource) between(slot uint, lo, hi float64) float64 {
	return lo + (hi-lo)*s.frac(slot)
}

// damped is a decaying oscillation used for spectra-like tables.
func damped(x, amplitude, freq, phase, decay float64) float64 {
	return amplitude * math.Sin(freq*x+phase) * math.Exp(-decay*x)
}

// lorentz is a unit-area Lorentzian profile.
func lorentz(x, center, width float64) float64 {
	if width <= 0 {
		width = 1e-3
	}
	d := x - center
	return width / (math.Pi * (d*d + width*width))
}

// grid returns n evenly spaced points starting at start with step.
func grid(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
