package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/history"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded regression and oracle runs",
		Long: `List the most recent runs recorded with --history-db, newest first.

The ledger location comes from --history-db, FEFFCHECK_HISTORY_DB or the
history_db key of feffcheck.yaml.`,
		Example: `  feffcheck history --history-db .feffcheck/history.db --limit 5
  feffcheck history -o json`,
		Args:    noArgs,
		GroupID: groupRuns,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().String("history-db", "", "SQLite history ledger to read")
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "Maximum number of runs to list")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if cc.Cfg.HistoryDB == "" {
		return core.InputError("INPUT.CLI_USAGE", "no history ledger configured; pass '--history-db <path>'")
	}
	if limit <= 0 {
		return core.InputError("INPUT.CLI_USAGE", "invalid limit %d; expected a positive integer", limit)
	}

	store := history.NewStore(cc.Logger)
	if err := store.Open(cmd.Context(), cc.Cfg.HistoryDB); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if err := cc.Renderer.History(runs); err != nil {
		return core.IOError("IO.CLI_OUTPUT", "failed to write history: %v", err)
	}
	return nil
}
