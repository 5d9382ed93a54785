package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// Report renders a finished run. JSON mode prints the report document; the
// text modes print the human summary followed by the report location, and
// explicit text mode adds a mismatch table.
func (r *Renderer) Report(report *regression.Report, reportPath string) error {
	if r.EffectiveMode() == ModeJSON {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		return r.RawJSON(data)
	}

	summary := regression.Summary(report)
	if r.isTTY {
		status := "Regression status: " + report.Status()
		summary = strings.Replace(summary, status,
			"Regression status: "+r.styles.Status(report.Status()), 1)
	}
	r.Printf("%s", summary)
	if r.mode == ModeText && report.MismatchArtifactCount > 0 {
		r.Println(MismatchTable(report))
		r.Println("")
	}
	r.Printf("JSON report: %s\n", reportPath)
	return nil
}

// MismatchTable lists every failing artifact of a report.
func MismatchTable(report *regression.Report) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Fixture", "Artifact", "Mode", "Reason"})
	for _, f := range report.MismatchFixtures {
		for _, v := range f.Artifacts {
			t.AppendRow(table.Row{f.FixtureID, v.ArtifactPath, string(v.Comparison.Mode), v.ReasonText()})
		}
	}
	return t.Render()
}
