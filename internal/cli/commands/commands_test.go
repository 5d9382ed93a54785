package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/cli/config"
	"github.com/leapstack-labs/feffcheck/internal/cli/testutil"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

func TestNewRegressionCommand(t *testing.T) {
	cmd := NewRegressionCommand()

	assert.Equal(t, "regression", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"manifest", "policy", "baseline-root", "baseline-subdir", "actual-root", "actual-subdir", "report", "history-db"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	for _, m := range core.AllModules() {
		assert.NotNil(t, cmd.Flags().Lookup(hookFlagName(m)), "hook flag for %s should exist", m)
	}
	assert.Nil(t, cmd.Flags().Lookup("capture-runner"))
}

func TestNewOracleCommand(t *testing.T) {
	cmd := NewOracleCommand()

	assert.Equal(t, "oracle", cmd.Use)
	flags := []string{"capture-runner", "capture-bin-dir", "capture-allow-missing-entry-files", "capture-timeout", "run-debye", "run-self"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestLegacyFlagSpellings(t *testing.T) {
	cmd := NewOracleCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--run-pot-placeholder",
		"--run-fullspectrum",
		"--oracle-root", "captures",
		"--oracle-subdir", "outputs2",
	}))

	assert.True(t, cmd.Flags().Changed("run-pot"))
	assert.True(t, cmd.Flags().Changed("baseline-root"))
	root, err := cmd.Flags().GetString("baseline-root")
	require.NoError(t, err)
	assert.Equal(t, "captures", root)
	subdir, err := cmd.Flags().GetString("baseline-subdir")
	require.NoError(t, err)
	assert.Equal(t, "outputs2", subdir)
}

func TestHookFlagsEnabled(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	hooks := addHookFlags(cmd.Flags())
	cmd.Flags().SetNormalizeFunc(normalizeRunFlags)
	require.NoError(t, cmd.ParseFlags([]string{"--run-self", "--run-rdinp", "--run-debye-placeholder"}))

	assert.Equal(t, []core.Module{core.ModuleRDINP, core.ModuleDEBYE, core.ModuleSELF}, hooks.enabled())

	rc := regressionConfig(testRunConfig(), "/ws", hooks)
	assert.True(t, rc.HookEnabled(core.ModuleSELF))
	assert.False(t, rc.HookEnabled(core.ModulePOT))
	assert.Equal(t, "/ws", rc.WorkspaceRoot)
}

func TestModuleCommands(t *testing.T) {
	cmds := NewModuleCommands()
	require.Len(t, cmds, 16)

	names := map[string]bool{}
	for _, cmd := range cmds {
		names[cmd.Name()] = true
		assert.Equal(t, groupModules, cmd.GroupID)
	}
	for _, name := range []string{"rdinp", "pot", "ff2x", "sfconv", "fullspectrum", "screen"} {
		assert.True(t, names[name], "missing module command %q", name)
	}
	assert.False(t, names["debye"])
}

func TestModuleCommandRejectsArguments(t *testing.T) {
	cmd := NewModuleCommand(core.ModulePOT)
	cmd.SetArgs([]string{"unexpected"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_USAGE"))
}

func TestParseProcessCount(t *testing.T) {
	n, err := parseProcessCount("4")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	for _, arg := range []string{"0", "-1", "not-an-integer", ""} {
		_, err := parseProcessCount(arg)
		require.Error(t, err, arg)
		assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_USAGE"), arg)
	}
}

func fixtureCtx(t *testing.T, fixtures ...testutil.Fixture) *fixtureContext {
	t.Helper()
	root := testutil.SetupWorkspace(t, fixtures...)
	fc, err := loadFixtureContext(root, root)
	require.NoError(t, err)
	return fc
}

func TestSelectForModuleRDINP(t *testing.T) {
	fixtures := []testutil.Fixture{
		{ID: "FX-RDINP-002", ModulesCovered: []string{"RDINP"}, InputDirectory: "cases/b"},
		{ID: "FX-RDINP-001", ModulesCovered: []string{"RDINP"}, InputDirectory: "cases/a"},
		{ID: "FX-WORKFLOW-001", FixtureType: "workflow", ModulesCovered: []string{"RDINP", "POT"}},
	}

	t.Run("input directory match", func(t *testing.T) {
		fc := fixtureCtx(t, fixtures...)
		fc.cwd = filepath.Join(fc.root, "cases", "b")
		require.NoError(t, os.MkdirAll(fc.cwd, 0o755))
		id, err := fc.selectForModule(core.ModuleRDINP)
		require.NoError(t, err)
		assert.Equal(t, "FX-RDINP-002", id)
	})

	t.Run("lowest id among module fixtures", func(t *testing.T) {
		fc := fixtureCtx(t, fixtures...)
		id, err := fc.selectForModule(core.ModuleRDINP)
		require.NoError(t, err)
		assert.Equal(t, "FX-RDINP-001", id)
	})

	t.Run("single module fixture wins over workflows", func(t *testing.T) {
		fc := fixtureCtx(t, fixtures[0], fixtures[2])
		id, err := fc.selectForModule(core.ModuleRDINP)
		require.NoError(t, err)
		assert.Equal(t, "FX-RDINP-002", id)
	})
}

func TestSelectForModuleNoCandidates(t *testing.T) {
	fc := fixtureCtx(t, testutil.Fixture{ID: "FX-POT-001", ModulesCovered: []string{"POT"}})
	_, err := fc.selectForModule(core.ModuleXSPH)
	require.Error(t, err)
	assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_FIXTURE_LOOKUP"))
	assert.Contains(t, err.Error(), "no fixtures in 'tasks/golden-fixture-manifest.json' cover module XSPH")
}

func TestSelectForModuleDropsFailingFixtures(t *testing.T) {
	fc := fixtureCtx(t,
		testutil.Fixture{ID: "FX-POT-001", ModulesCovered: []string{"POT"}},
		testutil.Fixture{ID: "FX-POT-002", ModulesCovered: []string{"POT"}},
	)
	_, err := fc.selectForModule(core.ModulePOT)
	require.Error(t, err)
	assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_FIXTURE_LOOKUP"))
	assert.Contains(t, err.Error(), "unable to resolve fixture for module POT")
	assert.Contains(t, err.Error(), "FX-POT-001 => ")
	assert.Contains(t, err.Error(), "; FX-POT-002 => ")
}

func TestSelectForModuleKeepsPassingFixtures(t *testing.T) {
	fc := fixtureCtx(t,
		testutil.Fixture{ID: "FX-POT-002", ModulesCovered: []string{"POT"}},
		testutil.Fixture{ID: "FX-WORKFLOW-001", FixtureType: "workflow", ModulesCovered: []string{"RDINP", "POT"}},
	)
	testutil.StageCopperInput(t, fc.cwd)
	_, err := executeInPlace(fc.cwd, core.ModuleRDINP, "FX-WORKFLOW-001")
	require.NoError(t, err)

	id, err := fc.selectForModule(core.ModulePOT)
	require.NoError(t, err)
	assert.Equal(t, "FX-POT-002", id)
	assert.NoFileExists(t, filepath.Join(fc.cwd, "pot.bin"), "probes must not write into the working directory")
}

func TestSelectWorkflow(t *testing.T) {
	t.Run("lowest id", func(t *testing.T) {
		fc := fixtureCtx(t,
			testutil.Fixture{ID: "FX-WORKFLOW-B", FixtureType: "workflow", ModulesCovered: []string{"RDINP", "POT"}},
			testutil.Fixture{ID: "FX-WORKFLOW-A", ModulesCovered: []string{"RDINP", "XSPH"}},
			testutil.Fixture{ID: "FX-RDINP-001", ModulesCovered: []string{"RDINP"}},
		)
		f, err := fc.selectWorkflow()
		require.NoError(t, err)
		assert.Equal(t, "FX-WORKFLOW-A", f.ID)
		assert.Equal(t, []core.Module{core.ModuleRDINP, core.ModuleXSPH}, f.Modules())
	})

	t.Run("none", func(t *testing.T) {
		fc := fixtureCtx(t, testutil.Fixture{ID: "FX-RDINP-001", ModulesCovered: []string{"RDINP"}})
		_, err := fc.selectWorkflow()
		require.Error(t, err)
		assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_WORKFLOW_FIXTURE"))
	})
}

func TestSamePathFollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	assert.True(t, samePath(link, target))
	assert.True(t, samePath(target+"/", target))
	assert.False(t, samePath(dir, target))
}

func testRunConfig() config.RunConfig {
	return config.RunConfig{
		Manifest:       regression.DefaultManifestPath,
		Policy:         regression.DefaultPolicyPath,
		BaselineRoot:   regression.DefaultBaselineRoot,
		BaselineSubdir: regression.DefaultBaselineSubdir,
		ActualRoot:     regression.DefaultActualRoot,
		ActualSubdir:   regression.DefaultActualSubdir,
		Report:         regression.DefaultReportPath,
	}
}
