package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/cli/config"
	"github.com/leapstack-labs/feffcheck/internal/cli/output"
	"github.com/leapstack-labs/feffcheck/internal/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	// Cwd is the directory the command was started from
	Cwd string
}

// NewCommandContext collects the loaded config, the logger and a renderer
// bound to the command's output streams.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, core.IOError("IO.CLI_CURRENT_DIR", "failed to read current working directory: %v", err)
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
		Cwd:      cwd,
	}, nil
}

// getConfig returns the current configuration, loading defaults when the
// command runs outside the root command.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", "", nil)
}

// noArgs rejects positional arguments with a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return core.InputError("INPUT.CLI_USAGE", "Command '%s' does not accept positional arguments.", cmd.Name())
	}
	return nil
}

// Command groups shown in help output.
const (
	groupRuns     = "runs"
	groupWorkflow = "workflow"
	groupModules  = "modules"
)

// Groups returns the help groups every grouped command belongs to.
func Groups() []*cobra.Group {
	return []*cobra.Group{
		{ID: groupRuns, Title: "Comparison Commands:"},
		{ID: groupWorkflow, Title: "Workflow Commands:"},
		{ID: groupModules, Title: "Module Commands:"},
	}
}
