package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/cli/config"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/history"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// ErrRegressionFailed is returned after a completed comparison with at least
// one failing fixture. The summary and report have already been produced.
var ErrRegressionFailed = errors.New("regression comparison failed")

// NewRegressionCommand creates the regression command.
func NewRegressionCommand() *cobra.Command {
	var hooks hookFlags

	cmd := &cobra.Command{
		Use:   "regression",
		Short: "Compare actual artifacts against reference baselines",
		Long: `Compare every manifest fixture's actual tree against its baseline tree
under the tolerance policy, write a JSON report and print a summary.

Enabled --run-<module> hooks execute the module for each covering fixture,
in serial-chain order, before the comparison.`,
		Example: `  # Compare with the default workspace locations
  feffcheck regression

  # Regenerate POT outputs first, then compare
  feffcheck regression --run-pot --actual-root artifacts/actual

  # Record the run in a history ledger
  feffcheck regression --history-db .feffcheck/history.db`,
		Args:    noArgs,
		GroupID: groupRuns,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegression(cmd, hooks)
		},
	}

	runFlags(cmd.Flags(), "Root of the baseline trees")
	hooks = addHookFlags(cmd.Flags())

	return cmd
}

func runRegression(cmd *cobra.Command, hooks hookFlags) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	rc := regressionConfig(cc.Cfg.Regression, cc.Cfg.WorkspaceRoot, hooks)
	rc.Logger = cc.Logger
	report, err := regression.New(rc).Run(cmd.Context())
	if err != nil {
		return err
	}
	return finishRun(cmd.Context(), cc, "regression", rc.ReportPath, report)
}

// regressionConfig builds runner configuration from loaded settings.
func regressionConfig(run config.RunConfig, workspaceRoot string, hooks hookFlags) regression.Config {
	rc := regression.Config{
		ManifestPath:   run.Manifest,
		PolicyPath:     run.Policy,
		BaselineRoot:   run.BaselineRoot,
		BaselineSubdir: run.BaselineSubdir,
		ActualRoot:     run.ActualRoot,
		ActualSubdir:   run.ActualSubdir,
		ReportPath:     run.Report,
		WorkspaceRoot:  workspaceRoot,
	}
	for _, m := range hooks.enabled() {
		rc.EnableHook(m)
	}
	return rc
}

// finishRun prints the summary, records history and maps a failing report
// onto ErrRegressionFailed.
func finishRun(ctx context.Context, cc *CommandContext, command, reportPath string, report *regression.Report) error {
	if err := cc.Renderer.Report(report, reportPath); err != nil {
		return core.IOError("IO.CLI_OUTPUT", "failed to write summary: %v", err)
	}
	if cc.Cfg.HistoryDB != "" {
		if err := recordRun(ctx, cc, command, reportPath, report); err != nil {
			return err
		}
	}
	if !report.Passed {
		return ErrRegressionFailed
	}
	return nil
}

func recordRun(ctx context.Context, cc *CommandContext, command, reportPath string, report *regression.Report) (err error) {
	store := history.NewStore(cc.Logger)
	if err := store.Open(ctx, cc.Cfg.HistoryDB); err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = core.IOError("IO.HISTORY_WRITE", "failed to close history ledger '%s': %v", cc.Cfg.HistoryDB, cerr)
		}
	}()

	run, err := store.RecordRun(ctx, command, reportPath, report)
	if err != nil {
		return err
	}
	cc.Logger.Debug("recorded run", "id", run.ID, "command", run.Command, "passed", run.Passed)
	return nil
}
