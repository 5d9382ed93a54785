package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/feffcheck/internal/history"
)

// History renders recorded runs as a table, or as JSON in JSON mode.
func (r *Renderer) History(runs []history.Run) error {
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(historyJSON(runs))
	}
	if len(runs) == 0 {
		r.Println("No recorded runs.")
		return nil
	}

	titleCaser := cases.Title(language.English)
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Recorded", "Command", "Status", "Fixtures", "Failed", "Mismatched artifacts", "Report"})
	for _, run := range runs {
		status := "FAIL"
		if run.Passed {
			status = "PASS"
		}
		t.AppendRow(table.Row{
			run.RecordedAt.Format(time.RFC3339),
			titleCaser.String(run.Command),
			r.styles.Status(status),
			run.FixtureCount,
			run.FailedFixtureCount,
			run.MismatchArtifactCount,
			run.ReportPath,
		})
	}
	r.Println(t.Render())
	r.Println(r.styles.Muted.Render(fmt.Sprintf("%d run(s)", len(runs))))
	return nil
}

type historyRow struct {
	ID                    string `json:"id"`
	Command               string `json:"command"`
	RecordedAt            string `json:"recorded_at"`
	ReportPath            string `json:"report_path"`
	Passed                bool   `json:"passed"`
	FixtureCount          int    `json:"fixture_count"`
	FailedFixtureCount    int    `json:"failed_fixture_count"`
	MismatchFixtureCount  int    `json:"mismatch_fixture_count"`
	MismatchArtifactCount int    `json:"mismatch_artifact_count"`
}

func historyJSON(runs []history.Run) []historyRow {
	rows := make([]historyRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, historyRow{
			ID:                    run.ID,
			Command:               run.Command,
			RecordedAt:            run.RecordedAt.Format(time.RFC3339Nano),
			ReportPath:            run.ReportPath,
			Passed:                run.Passed,
			FixtureCount:          run.FixtureCount,
			FailedFixtureCount:    run.FailedFixtureCount,
			MismatchFixtureCount:  run.MismatchFixtureCount,
			MismatchArtifactCount: run.MismatchArtifactCount,
		})
	}
	return rows
}
