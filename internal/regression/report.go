package regression

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/compare"
	"github.com/leapstack-labs/feffcheck/internal/core"
)

// FixtureReport is the outcome of one fixture.
type FixtureReport struct {
	FixtureID string            `json:"fixture_id"`
	Passed    bool              `json:"passed"`
	Artifacts []compare.Verdict `json:"artifacts"`
}

// NewFixtureReport applies the pass/fail threshold to a fixture's verdicts.
func NewFixtureReport(id string, verdicts []compare.Verdict, threshold *Threshold) FixtureReport {
	if verdicts == nil {
		verdicts = []compare.Verdict{}
	}
	return FixtureReport{
		FixtureID: id,
		Passed:    threshold.Accepts(len(verdicts), countFailed(verdicts)),
		Artifacts: verdicts,
	}
}

// Failed returns the failing verdicts in order.
func (f FixtureReport) Failed() []compare.Verdict {
	out := []compare.Verdict{}
	for _, v := range f.Artifacts {
		if !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

func countFailed(verdicts []compare.Verdict) int {
	n := 0
	for _, v := range verdicts {
		if !v.Passed {
			n++
		}
	}
	return n
}

// Report is the serialized run report. Field order is the JSON key order.
type Report struct {
	Passed                bool            `json:"passed"`
	FailedFixtureCount    int             `json:"failed_fixture_count"`
	MismatchFixtureCount  int             `json:"mismatch_fixture_count"`
	MismatchArtifactCount int             `json:"mismatch_artifact_count"`
	Fixtures              []FixtureReport `json:"fixtures"`
	MismatchFixtures      []FixtureReport `json:"mismatch_fixtures"`
}

// BuildReport aggregates fixture reports. A fixture appears in
// MismatchFixtures iff it has a failing artifact, with only those artifacts.
func BuildReport(fixtures []FixtureReport) *Report {
	r := &Report{
		Fixtures:         fixtures,
		MismatchFixtures: []FixtureReport{},
	}
	if r.Fixtures == nil {
		r.Fixtures = []FixtureReport{}
	}
	for _, f := range r.Fixtures {
		if !f.Passed {
			r.FailedFixtureCount++
		}
		failed := f.Failed()
		if len(failed) == 0 {
			continue
		}
		r.MismatchFixtures = append(r.MismatchFixtures, FixtureReport{
			FixtureID: f.FixtureID,
			Passed:    f.Passed,
			Artifacts: failed,
		})
		r.MismatchArtifactCount += len(failed)
	}
	r.MismatchFixtureCount = len(r.MismatchFixtures)
	r.Passed = r.FailedFixtureCount == 0
	return r
}

// JSON encodes the report with two-space indentation and a trailing newline.
func (r *Report) JSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReport writes the report to path, creating parent directories.
func WriteReport(path string, r *Report) error {
	data, err := r.JSON()
	if err != nil {
		return core.InternalError("SYS.REGRESSION_REPORT", "failed to encode report: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.IOError("IO.REGRESSION_FILESYSTEM", "failed to create report directory '%s': %v", filepath.Dir(path), err)
	}
	if err := artifact.WriteAtomic(path, data); err != nil {
		return core.IOError("IO.REGRESSION_FILESYSTEM", "failed to write report '%s': %v", path, err)
	}
	return nil
}

// Status is PASS or FAIL.
func (r *Report) Status() string {
	if r.Passed {
		return "PASS"
	}
	return "FAIL"
}

// Summary renders the plain-text human summary.
func Summary(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Regression status: %s\n", r.Status())
	fmt.Fprintf(&b, "Fixtures: %d total, %d failed\n", len(r.Fixtures), r.FailedFixtureCount)
	fmt.Fprintf(&b, "Mismatches: %d fixture(s), %d artifact(s)\n", r.MismatchFixtureCount, r.MismatchArtifactCount)
	for _, f := range r.MismatchFixtures {
		fmt.Fprintf(&b, "Fixture %s mismatches:\n", f.FixtureID)
		for _, v := range f.Artifacts {
			fmt.Fprintf(&b, "- %s: %s\n", v.ArtifactPath, v.ReasonText())
		}
	}
	return b.String()
}
