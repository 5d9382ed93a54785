package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/modules"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// NewFeffCommand creates the feff command.
func NewFeffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "feff",
		Short: "Run the serial module chain of the current workflow fixture",
		Long: `Run every module covered by the workflow fixture for the current
directory, in serial-chain order, reading and writing in place.

The fixture is the workflow fixture covering RDINP whose input directory is
the current directory, or the one with the lowest id.`,
		Args:    noArgs,
		GroupID: groupWorkflow,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return runFeff(cc)
		},
	}
}

// NewFeffMPICommand creates the feffmpi command.
func NewFeffMPICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "feffmpi <nprocs>",
		Short: "Run the serial module chain; process counts above one are accepted and ignored",
		Long: `Run the same serial chain as feff. Parallel execution is deferred, so a
process count above one prints a warning and runs serially.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return core.InputError("INPUT.CLI_USAGE", "Command 'feffmpi' requires exactly one argument: <nprocs>.")
			}
			return nil
		},
		GroupID: groupWorkflow,
		RunE: func(cmd *cobra.Command, args []string) error {
			nprocs, err := parseProcessCount(args[0])
			if err != nil {
				return err
			}
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			if nprocs > 1 {
				cc.Renderer.Warn(core.WarningLine("RUN.MPI_DEFERRED", fmt.Sprintf(
					"MPI parity is deferred; executing serial compatibility chain instead (requested nprocs=%d).", nprocs)))
			}
			return runFeff(cc)
		},
	}
}

func parseProcessCount(arg string) (uint64, error) {
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || n == 0 {
		return 0, core.InputError("INPUT.CLI_USAGE", "Invalid process count '%s'; expected a positive integer.", arg)
	}
	return n, nil
}

func runFeff(cc *CommandContext) error {
	if !cc.Cfg.WorkspaceFound {
		return core.InputError("INPUT.CLI_WORKSPACE",
			"failed to locate workspace root from '%s'; expected to find '%s'", cc.Cwd, regression.DefaultManifestPath)
	}
	fc, err := loadFixtureContext(cc.Cwd, cc.Cfg.WorkspaceRoot)
	if err != nil {
		return err
	}
	fixture, err := fc.selectWorkflow()
	if err != nil {
		return err
	}

	chain := fixture.Modules()
	if len(chain) == 0 {
		return core.InputError("INPUT.CLI_FIXTURE_MODULES",
			"fixture '%s' does not provide any serial modules for 'feff'", fixture.ID)
	}
	for _, m := range chain {
		if !modules.IsAvailable(m) {
			return engineUnavailable(m)
		}
	}

	for _, m := range chain {
		cc.Logger.Info("running module", "module", m.Tag(), "fixture", fixture.ID)
		if _, err := executeInPlace(cc.Cwd, m, fixture.ID); err != nil {
			return err
		}
	}
	cc.Renderer.Printf("Completed serial workflow for fixture '%s'.\n", fixture.ID)
	return nil
}
