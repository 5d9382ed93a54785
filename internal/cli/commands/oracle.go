package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/oracle"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// OracleOptions holds options for the oracle command.
type OracleOptions struct {
	Runner                 string
	BinDir                 string
	AllowMissingEntryFiles bool
}

// NewOracleCommand creates the oracle command.
func NewOracleCommand() *cobra.Command {
	opts := &OracleOptions{}
	var hooks hookFlags

	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Capture reference baselines and compare against them",
		Long: `Run the reference capture script for every fixture, then compare the
actual trees against the freshly captured outputs.

Exactly one capture mode is required: --capture-runner runs each module
through a shell command, --capture-bin-dir points at prebuilt reference
binaries. A failed capture exits without writing a report.`,
		Example: `  # Capture with prebuilt binaries
  feffcheck oracle --capture-bin-dir /opt/feff/bin

  # Capture through a runner and bound it to ten minutes
  feffcheck oracle --capture-runner "docker run feff" --capture-timeout 10m`,
		Args:    noArgs,
		GroupID: groupRuns,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOracle(cmd, opts, hooks)
		},
	}

	runFlags(cmd.Flags(), "Root the capture script writes reference outputs to")
	cmd.Flags().StringVar(&opts.Runner, "capture-runner", "", "Shell command used by the capture script to run each module")
	cmd.Flags().StringVar(&opts.BinDir, "capture-bin-dir", "", "Directory holding prebuilt reference binaries")
	cmd.Flags().BoolVar(&opts.AllowMissingEntryFiles, "capture-allow-missing-entry-files", false, "Skip fixtures whose entry files are missing")
	cmd.Flags().Duration("capture-timeout", 0, "Abort the capture step after this long (0 means no limit)")
	hooks = addHookFlags(cmd.Flags())

	return cmd
}

func runOracle(cmd *cobra.Command, opts *OracleOptions, hooks hookFlags) error {
	capture := oracle.CaptureMode{Runner: opts.Runner, BinDir: opts.BinDir}
	if err := capture.Validate(); err != nil {
		return err
	}

	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if !cc.Cfg.WorkspaceFound {
		return core.InputError("INPUT.CLI_WORKSPACE",
			"failed to locate workspace root from '%s'; expected to find '%s'", cc.Cwd, regression.DefaultManifestPath)
	}

	oc := oracle.Config{
		Regression:             regressionConfig(cc.Cfg.Oracle.RunConfig, cc.Cfg.WorkspaceRoot, hooks),
		WorkspaceRoot:          cc.Cfg.WorkspaceRoot,
		Capture:                capture,
		AllowMissingEntryFiles: opts.AllowMissingEntryFiles,
		CaptureTimeout:         cc.Cfg.Oracle.CaptureTimeout,
		Logger:                 cc.Logger,
	}
	report, err := oracle.New(oc).Run(cmd.Context())
	if err != nil {
		return err
	}
	return finishRun(cmd.Context(), cc, "oracle", oc.Regression.ReportPath, report)
}
