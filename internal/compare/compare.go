package compare

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
	"github.com/leapstack-labs/feffcheck/internal/policy"
)

// Comparator compares artifact trees under a policy.
type Comparator struct {
	policy *policy.Policy
}

// New creates a comparator for pol.
func New(pol *policy.Policy) *Comparator {
	return &Comparator{policy: pol}
}

// CompareDirs walks the union of files under baselineDir and actualDir and
// returns one verdict per relative path, sorted by path. When neither
// directory exists a single "." verdict reports the missing baseline.
func (c *Comparator) CompareDirs(baselineDir, actualDir string) ([]Verdict, error) {
	baselineFiles, err := artifact.ListFiles(baselineDir)
	if err != nil {
		return nil, core.IOError("IO.COMPARATOR_ACCESS", "failed to list baseline tree: %v", err)
	}
	actualFiles, err := artifact.ListFiles(actualDir)
	if err != nil {
		return nil, core.IOError("IO.COMPARATOR_ACCESS", "failed to list actual tree: %v", err)
	}

	inBaseline := make(map[string]bool, len(baselineFiles))
	union := make(map[string]bool, len(baselineFiles)+len(actualFiles))
	for _, f := range baselineFiles {
		inBaseline[f] = true
		union[f] = true
	}
	inActual := make(map[string]bool, len(actualFiles))
	for _, f := range actualFiles {
		inActual[f] = true
		union[f] = true
	}

	if len(union) == 0 && !artifact.DirExists(baselineDir) && !artifact.DirExists(actualDir) {
		return []Verdict{c.presenceVerdict(".", ReasonMissingBaseline, nil, nil)}, nil
	}

	paths := make([]string, 0, len(union))
	for p := range union {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	verdicts := make([]Verdict, 0, len(paths))
	for _, rel := range paths {
		v, err := c.compareEntry(rel, baselineDir, actualDir, inBaseline[rel], inActual[rel])
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

func (c *Comparator) compareEntry(rel, baselineDir, actualDir string, hasBaseline, hasActual bool) (Verdict, error) {
	baselinePath := filepath.Join(baselineDir, filepath.FromSlash(rel))
	actualPath := filepath.Join(actualDir, filepath.FromSlash(rel))

	switch {
	case !hasBaseline:
		data, err := readArtifact(actualPath)
		if err != nil {
			return Verdict{}, err
		}
		return c.presenceVerdict(rel, ReasonMissingBaseline, nil, data), nil
	case !hasActual:
		data, err := readArtifact(baselinePath)
		if err != nil {
			return Verdict{}, err
		}
		return c.presenceVerdict(rel, ReasonMissingActual, data, nil), nil
	}

	baseline, err := readArtifact(baselinePath)
	if err != nil {
		return Verdict{}, err
	}
	actual, err := readArtifact(actualPath)
	if err != nil {
		return Verdict{}, err
	}
	return c.CompareBytes(rel, baseline, actual), nil
}

// CompareBytes compares two artifact bodies present on both sides.
func (c *Comparator) CompareBytes(rel string, baseline, actual []byte) Verdict {
	res := c.policy.Resolve(rel)
	v := Verdict{
		ArtifactPath: filepath.ToSlash(rel),
		Comparison:   Comparison{Mode: res.Mode, MatchedCategory: res.MatchedCategory},
	}

	var reason string
	switch res.Mode {
	case policy.ModeWhitespaceText:
		v.Comparison.Metrics, reason = compareWhitespace(baseline, actual)
	case policy.ModeNumeric:
		v.Comparison.Metrics, reason = compareNumeric(baseline, actual, res.Tolerance, c.policy.CommentPrefixes())
	default:
		v.Comparison.Metrics, reason = compareExact(baseline, actual)
	}

	v.Passed = reason == ""
	if !v.Passed {
		v.Reason = strPtr(reason)
	}
	return v
}

// presenceVerdict reports an artifact present on one side only. Metrics
// describe the side that exists.
func (c *Comparator) presenceVerdict(rel, reason string, baseline, actual []byte) Verdict {
	res := c.policy.Resolve(rel)
	var metrics Metrics
	switch res.Mode {
	case policy.ModeWhitespaceText:
		metrics = WhitespaceMetrics{Kind: res.Mode, BaselineBytes: len(baseline), ActualBytes: len(actual)}
	case policy.ModeNumeric:
		prefixes := c.policy.CommentPrefixes()
		metrics = NumericMetrics{
			Kind:           res.Mode,
			BaselineValues: len(numeric.ParseText(string(baseline), prefixes)),
			ActualValues:   len(numeric.ParseText(string(actual), prefixes)),
			Tolerance:      toleranceMetrics(res.Tolerance),
		}
	default:
		metrics = ExactTextMetrics{Kind: res.Mode, BaselineBytes: len(baseline), ActualBytes: len(actual)}
	}
	return Verdict{
		ArtifactPath: rel,
		Passed:       false,
		Reason:       strPtr(reason),
		Comparison:   Comparison{Mode: res.Mode, MatchedCategory: res.MatchedCategory, Metrics: metrics},
	}
}

func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.IOError("IO.COMPARATOR_ACCESS", "failed to read artifact '%s': %v", path, err)
	}
	return data, nil
}

func compareExact(baseline, actual []byte) (Metrics, string) {
	m := ExactTextMetrics{
		Kind:          policy.ModeExactText,
		BaselineBytes: len(baseline),
		ActualBytes:   len(actual),
	}
	offset, ok := firstMismatch(baseline, actual)
	if !ok {
		return m, ""
	}
	m.FirstMismatchOffset = intPtr(offset)
	return m, fmt.Sprintf("exact text mismatch at byte %d (baseline=%d bytes, actual=%d bytes)",
		offset, len(baseline), len(actual))
}

func firstMismatch(a, b []byte) (int, bool) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i, true
		}
	}
	if len(a) != len(b) {
		return n, true
	}
	return 0, false
}

// NormalizeWhitespace collapses whitespace runs to one space, trims each
// line and drops trailing empty lines.
func NormalizeWhitespace(text string) []string {
	lines := numeric.SplitLines(text)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, strings.Join(strings.Fields(l), " "))
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func compareWhitespace(baseline, actual []byte) (Metrics, string) {
	m := WhitespaceMetrics{
		Kind:          policy.ModeWhitespaceText,
		BaselineBytes: len(baseline),
		ActualBytes:   len(actual),
	}
	b := NormalizeWhitespace(string(baseline))
	a := NormalizeWhitespace(string(actual))

	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			m.FirstMismatchLine = intPtr(i + 1)
			return m, fmt.Sprintf("whitespace-insensitive text mismatch at line %d", i+1)
		}
	}
	if len(a) != len(b) {
		m.FirstMismatchLine = intPtr(n + 1)
		return m, fmt.Sprintf("whitespace-insensitive line count mismatch (baseline=%d, actual=%d)", len(b), len(a))
	}
	return m, ""
}

func toleranceMetrics(t policy.Tolerance) ToleranceMetrics {
	return ToleranceMetrics{AbsTol: t.AbsTol, RelTol: t.RelTol, RelativeFloor: t.RelativeFloor}
}

func compareNumeric(baseline, actual []byte, tol policy.Tolerance, prefixes []string) (Metrics, string) {
	b := numeric.ParseText(string(baseline), prefixes)
	a := numeric.ParseText(string(actual), prefixes)

	m := NumericMetrics{
		Kind:           policy.ModeNumeric,
		BaselineValues: len(b),
		ActualValues:   len(a),
		Tolerance:      toleranceMetrics(tol),
	}
	if len(a) != len(b) {
		m.MismatchedValues = max(len(a), len(b)) - min(len(a), len(b))
		return m, fmt.Sprintf("numeric length mismatch (baseline=%d, actual=%d)", len(b), len(a))
	}

	first := ""
	for i := range b {
		m.ComparedValues++
		bv, av := b[i], a[i]

		if !isFinite(bv) || !isFinite(av) {
			if sameNonFinite(bv, av) {
				continue
			}
			m.MismatchedValues++
			if first == "" {
				first = fmt.Sprintf("numeric tolerance exceeded at value %d (non-finite mismatch: baseline=%s, actual=%s)",
					i, formatValue(bv), formatValue(av))
			}
			continue
		}

		delta := math.Abs(av - bv)
		denom := math.Max(math.Abs(bv), tol.RelativeFloor)
		rel := 0.0
		if denom > 0 {
			rel = delta / denom
		} else if delta > 0 {
			rel = math.Inf(1)
		}
		m.MaxAbsDelta = math.Max(m.MaxAbsDelta, delta)
		if isFinite(rel) {
			m.MaxRelDelta = math.Max(m.MaxRelDelta, rel)
		}

		if delta <= tol.AbsTol || delta <= tol.RelTol*denom {
			continue
		}
		m.MismatchedValues++
		if first == "" {
			first = fmt.Sprintf("numeric tolerance exceeded at value %d (|Δ|=%s, baseline=%s, actual=%s)",
				i, formatValue(delta), formatValue(bv), formatValue(av))
		}
	}

	if m.MismatchedValues == 0 {
		return m, ""
	}
	return m, fmt.Sprintf("%s; %d of %d values outside tolerance", first, m.MismatchedValues, m.ComparedValues)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sameNonFinite(a, b float64) bool {
	switch {
	case math.IsNaN(a):
		return math.IsNaN(b)
	case math.IsInf(a, 1):
		return math.IsInf(b, 1)
	case math.IsInf(a, -1):
		return math.IsInf(b, -1)
	}
	return false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
