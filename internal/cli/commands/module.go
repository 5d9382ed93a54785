package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/modules"
)

// NewModuleCommands creates one command per module, named after the
// module's executable.
func NewModuleCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(core.AllModules()))
	for _, m := range core.AllModules() {
		cmds = append(cmds, NewModuleCommand(m))
	}
	return cmds
}

// NewModuleCommand creates the command that runs m in the current directory.
func NewModuleCommand(m core.Module) *cobra.Command {
	return &cobra.Command{
		Use:   m.Command(),
		Short: fmt.Sprintf("Run %s on %s in the current directory", m.DisplayName(), m.CanonicalInput()),
		Long: fmt.Sprintf(`Run %s with ./%s as input, writing its outputs next to it.

Inside a workspace the fixture is chosen from the manifest; elsewhere the
module's default fixture %s is used.`, m.DisplayName(), m.CanonicalInput(), m.DefaultFixtureID()),
		Args:    noArgs,
		GroupID: groupModules,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModule(cmd, m)
		},
	}
}

func runModule(cmd *cobra.Command, m core.Module) error {
	if !modules.IsAvailable(m) {
		return engineUnavailable(m)
	}
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	fixtureID := m.DefaultFixtureID()
	if cc.Cfg.WorkspaceFound {
		fc, err := loadFixtureContext(cc.Cwd, cc.Cfg.WorkspaceRoot)
		if err != nil {
			return err
		}
		if fixtureID, err = fc.selectForModule(m); err != nil {
			return err
		}
	}

	cc.Logger.Info("running module", "module", m.Tag(), "fixture", fixtureID, "dir", cc.Cwd)
	artifacts, err := executeInPlace(cc.Cwd, m, fixtureID)
	if err != nil {
		return err
	}
	cc.Renderer.Printf("%s completed for fixture '%s' (%d artifacts).\n", m.Tag(), fixtureID, len(artifacts))
	return nil
}
