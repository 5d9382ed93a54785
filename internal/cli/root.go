// Package cli provides the command-line interface for feffcheck.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/cli/commands"
	"github.com/leapstack-labs/feffcheck/internal/cli/config"
	"github.com/leapstack-labs/feffcheck/internal/core"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "feffcheck",
		Short: "feffcheck - FEFF module runner and regression harness",
		Long: `feffcheck runs deterministic stand-ins for the sixteen FEFF compute
modules and compares their artifacts against reference baselines under a
numeric tolerance policy.

Run 'feffcheck regression' to compare a workspace, 'feffcheck oracle' to
capture fresh reference outputs first, or a module command such as
'feffcheck pot' to run one module in the current directory.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			section := ""
			if cmd.Name() == "regression" || cmd.Name() == "oracle" {
				section = cmd.Name()
			}
			cfg, err := config.LoadConfig(cfgFile, section, cmd.Flags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			logger.Debug("workspace", "root", cfg.WorkspaceRoot, "found", cfg.WorkspaceFound)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return core.InputError("INPUT.CLI_USAGE", "%v", err)
	})

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <workspace>/feffcheck.yaml)")
	rootCmd.PersistentFlags().String("workspace-root", "", "Workspace root (default: nearest ancestor holding the fixture manifest)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging on stderr")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddGroup(commands.Groups()...)
	rootCmd.AddCommand(commands.NewRegressionCommand())
	rootCmd.AddCommand(commands.NewOracleCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewFeffCommand())
	rootCmd.AddCommand(commands.NewFeffMPICommand())
	rootCmd.AddCommand(commands.NewModuleCommands()...)
	rootCmd.AddCommand(commands.NewVersionCommand(commands.BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
	}))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Main runs the CLI for os.Args-style argv and returns the process exit
// code. When the executable is invoked under a module or workflow command
// name, that command is selected.
func Main(argv []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var args []string
	if len(argv) > 0 {
		args = argv[1:]
		if name := aliasCommand(argv[0]); name != "" {
			args = append([]string{name}, args...)
		}
	}
	return Run(ctx, args, os.Stdout, os.Stderr)
}

// aliasCommand returns the subcommand selected by the executable name.
func aliasCommand(argv0 string) string {
	base := filepath.Base(argv0)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".exe") {
		base = strings.TrimSuffix(base, ext)
	}
	switch base {
	case "feff", "feffmpi":
		return base
	}
	if _, ok := core.ModuleForCommand(base); ok {
		return base
	}
	return ""
}

// Run executes the root command with args and returns the exit code. Fatal
// failures print the diagnostic and exit-code lines on stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	config.ResetConfig()
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	// Errors raised before the command starts come from argument parsing.
	started := false
	preRun := rootCmd.PersistentPreRunE
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		started = true
		return preRun(cmd, args)
	}

	err := rootCmd.ExecuteContext(ctx)
	return exitCode(err, started, stderr)
}

func exitCode(err error, started bool, stderr io.Writer) int {
	if err == nil {
		return core.ExitSuccess
	}
	if errors.Is(err, commands.ErrRegressionFailed) {
		return core.ExitRegressionFail
	}

	var ce *core.Error
	if !errors.As(err, &ce) {
		if started {
			ce = core.InternalError("SYS.CLI_UNCLASSIFIED", "%v", err)
		} else {
			ce = core.InputError("INPUT.CLI_USAGE", "%v", err)
		}
	}
	_, _ = fmt.Fprintln(stderr, ce.DiagnosticLine())
	_, _ = fmt.Fprintln(stderr, ce.FatalExitLine())
	return ce.ExitCode()
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for feffcheck.

To load completions:

Bash:
  $ source <(feffcheck completion bash)

Zsh:
  $ feffcheck completion zsh > "${fpath[1]}/_feffcheck"

Fish:
  $ feffcheck completion fish | source

PowerShell:
  PS> feffcheck completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
