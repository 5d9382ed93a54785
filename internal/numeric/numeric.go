// Package numeric extracts numbers and flags from free-form input decks.
package numeric

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const trimSet = ",;:(){}[]="

// DefaultCommentPrefixes are the line prefixes skipped by module parsers.
var DefaultCommentPrefixes = []string{"#", "!", "*"}

// ParseToken parses one token, trimming punctuation and accepting Fortran
// D exponents.
func ParseToken(token string) (float64, bool) {
	t := strings.Trim(token, trimSet)
	// Hex mantissas and digit separators are Go literal syntax, not numbers
	// in a deck.
	if t == "" || strings.ContainsAny(t, "xX_") {
		return 0, false
	}
	t = strings.NewReplacer("D", "E", "d", "E").Replace(t)
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		// ParseFloat reports range errors with ±Inf; keep those.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return v, true
		}
		return 0, false
	}
	return v, true
}

// ParseLine returns every numeric token on line, discarding the rest.
func ParseLine(line string) []float64 {
	fields := strings.Fields(line)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		if v, ok := ParseToken(f); ok {
			out = append(out, v)
		}
	}
	return out
}

// IsComment reports whether the trimmed line starts with one of prefixes.
func IsComment(line string, prefixes []string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// ParseText tokenizes every non-comment line of text into a flat sequence.
func ParseText(text string, commentPrefixes []string) []float64 {
	var out []float64
	for _, line := range SplitLines(text) {
		if IsComment(line, commentPrefixes) {
			continue
		}
		out = append(out, ParseLine(line)...)
	}
	return out
}

// SplitLines splits on \n and strips a trailing \r from each line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// ParseBool accepts T/TRUE/1 and F/FALSE/0 case-insensitively. Other
// numeric tokens count as true when greater than 0.5.
func ParseBool(token string) (bool, bool) {
	t := strings.ToUpper(strings.Trim(token, trimSet+"."))
	switch t {
	case "T", "TRUE", "1":
		return true, true
	case "F", "FALSE", "0":
		return false, true
	}
	if v, ok := ParseToken(token); ok {
		return v > 0.5, true
	}
	return false, false
}

// integerTolerance bounds how far a float may sit from an integer and still
// be accepted by ToInt.
const integerTolerance = 1e-6

// ToInt converts a parsed value to an int when it is within integerTolerance
// of an integer.
func ToInt(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v is not finite", v)
	}
	r := math.Round(v)
	if math.Abs(v-r) > integerTolerance {
		return 0, fmt.Errorf("value %v is not an integer", v)
	}
	if r > math.MaxInt32 || r < math.MinInt32 {
		return 0, fmt.Errorf("value %v is out of range", v)
	}
	return int(r), nil
}
