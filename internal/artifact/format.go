package artifact

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatFixed renders value right-aligned in width columns with digits
// fractional digits. Negative zero renders as zero.
func FormatFixed(value float64, width, digits int) string {
	if value == 0 {
		value = 0
	}
	if s, ok := nonFinite(value); ok {
		return fmt.Sprintf("%*s", width, s)
	}
	out := fmt.Sprintf("%*.*f", width, digits, value)
	if trimmed := strings.TrimSpace(out); strings.HasPrefix(trimmed, "-") && strings.Trim(trimmed, "-0.") == "" {
		out = fmt.Sprintf("%*.*f", width, digits, 0.0)
	}
	return out
}

// FormatScientific renders value as mantissa with digits fractional digits
// followed by an unpadded exponent, e.g. 1.250E3 or -4.000E-2.
func FormatScientific(value float64, digits int) string {
	if value == 0 {
		value = 0
	}
	if s, ok := nonFinite(value); ok {
		return s
	}
	raw := strconv.FormatFloat(value, 'E', digits, 64)
	mantissa, exp, found := strings.Cut(raw, "E")
	if !found {
		return raw
	}
	sign := ""
	switch exp[0] {
	case '-':
		sign = "-"
		exp = exp[1:]
	case '+':
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
		sign = ""
	}
	return mantissa + "E" + sign + exp
}

// FormatScientificPadded renders value in scientific form right-aligned in
// width columns.
func FormatScientificPadded(value float64, width, digits int) string {
	return fmt.Sprintf("%*s", width, FormatScientific(value, digits))
}

func nonFinite(value float64) (string, bool) {
	switch {
	case math.IsNaN(value):
		return "NaN", true
	case math.IsInf(value, 1):
		return "inf", true
	case math.IsInf(value, -1):
		return "-inf", true
	}
	return "", false
}
