// Package regression runs fixture-driven comparisons: optional module hooks
// write into the actual tree, the comparator walks it against the baseline
// tree, and the aggregated report is written as JSON.
package regression

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/leapstack-labs/feffcheck/internal/compare"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/modules"
	"github.com/leapstack-labs/feffcheck/internal/policy"
)

// Runner executes one regression run.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a runner. A nil logger discards output.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run loads the manifest and policy, executes the enabled hooks and compares
// every fixture in manifest order. The report is written only when every
// step succeeds; a hook failure aborts the run with the module's error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	manifest, err := LoadManifest(r.cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	pol, err := policy.Load(r.cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	comparator := compare.New(pol)

	r.logger.Debug("starting regression run",
		"manifest", r.cfg.ManifestPath,
		"fixtures", len(manifest.Fixtures),
		"baseline_root", r.cfg.BaselineRoot,
		"actual_root", r.cfg.ActualRoot)

	fixtures := make([]FixtureReport, 0, len(manifest.Fixtures))
	for _, f := range manifest.Fixtures {
		if err := ctx.Err(); err != nil {
			return nil, core.OrchestrationError("RUN.REGRESSION_CANCELLED", "regression run cancelled before fixture '%s': %v", f.ID, err)
		}
		if err := r.runHooks(f); err != nil {
			return nil, err
		}

		verdicts, err := comparator.CompareDirs(r.BaselineDir(f.ID), r.ActualDir(f.ID))
		if err != nil {
			return nil, err
		}
		fr := NewFixtureReport(f.ID, verdicts, manifest.ThresholdFor(f))
		r.logger.Debug("compared fixture", "fixture", f.ID, "artifacts", len(verdicts), "passed", fr.Passed)
		fixtures = append(fixtures, fr)
	}

	report := BuildReport(fixtures)
	if err := WriteReport(r.cfg.ReportPath, report); err != nil {
		return nil, err
	}
	r.logger.Info("regression report written", "path", r.cfg.ReportPath, "passed", report.Passed)
	return report, nil
}

// BaselineDir is the baseline tree of a fixture.
func (r *Runner) BaselineDir(fixtureID string) string {
	return filepath.Join(r.cfg.BaselineRoot, fixtureID, r.cfg.BaselineSubdir)
}

// ActualDir is the actual tree of a fixture.
func (r *Runner) ActualDir(fixtureID string) string {
	return filepath.Join(r.cfg.ActualRoot, fixtureID, r.cfg.ActualSubdir)
}

// runHooks executes the enabled modules the fixture covers, in serial-chain
// order.
func (r *Runner) runHooks(f Fixture) error {
	for _, m := range f.Modules() {
		if !r.cfg.HookEnabled(m) {
			continue
		}
		req := r.hookRequest(f, m)
		r.logger.Debug("executing module hook", "fixture", f.ID, "module", m.String(), "input", req.InputPath)
		if _, err := modules.Execute(m, req); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) hookRequest(f Fixture, m core.Module) core.ComputeRequest {
	out := r.ActualDir(f.ID)
	input := filepath.Join(out, m.CanonicalInput())
	if m == core.ModuleRDINP && f.InputDirectory != "" {
		dir := f.InputDirectory
		if !filepath.IsAbs(dir) && r.cfg.WorkspaceRoot != "" {
			dir = filepath.Join(r.cfg.WorkspaceRoot, dir)
		}
		input = filepath.Join(dir, f.EntryFile(m.CanonicalInput()))
	}
	return core.NewComputeRequest(f.ID, m, input, out)
}
