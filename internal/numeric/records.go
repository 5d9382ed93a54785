package numeric

import (
	"fmt"
	"strings"
)

// Document is a parsed input deck supporting marker lookups.
type Document struct {
	lines []string
}

// NewDocument splits text into lines for marker lookups.
func NewDocument(text string) *Document {
	return &Document{lines: SplitLines(text)}
}

// Lines returns the raw lines.
func (d *Document) Lines() []string {
	return d.lines
}

// findMarker returns the index of the first line containing marker,
// case-insensitively.
func (d *Document) findMarker(marker string) int {
	needle := strings.ToLower(marker)
	for i, line := range d.lines {
		if strings.Contains(strings.ToLower(line), needle) {
			return i
		}
	}
	return -1
}

// HasMarker reports whether any line contains marker.
func (d *Document) HasMarker(marker string) bool {
	return d.findMarker(marker) >= 0
}

// RawAfter returns the first nonempty line after the marker line.
func (d *Document) RawAfter(marker string) (string, error) {
	idx := d.findMarker(marker)
	if idx < 0 {
		return "", fmt.Errorf("marker %q not found", marker)
	}
	for _, line := range d.lines[idx+1:] {
		if strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line), nil
		}
	}
	return "", fmt.Errorf("marker %q has no value line", marker)
}

// ValuesAfter returns the numeric tokens of the first nonempty line after the
// marker line. At least min values are required.
func (d *Document) ValuesAfter(marker string, min int) ([]float64, error) {
	raw, err := d.RawAfter(marker)
	if err != nil {
		return nil, err
	}
	vals := ParseLine(raw)
	if len(vals) < min {
		return nil, fmt.Errorf("marker %q: expected %d values, found %d", marker, min, len(vals))
	}
	return vals, nil
}

// IntsAfter is ValuesAfter with integer conversion.
func (d *Document) IntsAfter(marker string, min int) ([]int, error) {
	vals, err := d.ValuesAfter(marker, min)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		n, err := ToInt(v)
		if err != nil {
			return nil, fmt.Errorf("marker %q value %d: %w", marker, i+1, err)
		}
		out[i] = n
	}
	return out, nil
}

// BoolAfter reads a single flag from the line after the marker.
func (d *Document) BoolAfter(marker string) (bool, error) {
	raw, err := d.RawAfter(marker)
	if err != nil {
		return false, err
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return false, fmt.Errorf("marker %q has no flag", marker)
	}
	v, ok := ParseBool(fields[0])
	if !ok {
		return false, fmt.Errorf("marker %q: %q is not a flag", marker, fields[0])
	}
	return v, nil
}

// KeywordValues finds a line whose first field equals keyword
// case-insensitively and returns the numeric tokens that follow on the same
// line.
func (d *Document) KeywordValues(keyword string) ([]float64, bool) {
	for _, line := range d.lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.EqualFold(fields[0], keyword) {
			continue
		}
		return ParseLine(strings.Join(fields[1:], " ")), true
	}
	return nil, false
}

// NumericRows returns the numeric tokens of every non-comment line that
// yields at least min values, in order.
func (d *Document) NumericRows(min int) [][]float64 {
	var rows [][]float64
	for _, line := range d.lines {
		if IsComment(line, DefaultCommentPrefixes) {
			continue
		}
		vals := ParseLine(line)
		if len(vals) >= min && len(vals) > 0 {
			rows = append(rows, vals)
		}
	}
	return rows
}

// RawAfterN returns the n-th nonempty line after the marker line, counting
// from 1.
func (d *Document) RawAfterN(marker string, n int) (string, error) {
	idx := d.findMarker(marker)
	if idx < 0 {
		return "", fmt.Errorf("marker %q not found", marker)
	}
	seen := 0
	for _, line := range d.lines[idx+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if seen == n {
			return strings.TrimSpace(line), nil
		}
	}
	return "", fmt.Errorf("marker %q has fewer than %d lines after it", marker, n)
}

// RowsAfter returns the numeric rows following the marker line until the
// first line yielding fewer than min values.
func (d *Document) RowsAfter(marker string, min int) ([][]float64, error) {
	idx := d.findMarker(marker)
	if idx < 0 {
		return nil, fmt.Errorf("marker %q not found", marker)
	}
	var rows [][]float64
	for _, line := range d.lines[idx+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		vals := ParseLine(line)
		if len(vals) < min {
			break
		}
		rows = append(rows, vals)
	}
	return rows, nil
}
