package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/cli/testutil"
	roottestutil "github.com/leapstack-labs/feffcheck/internal/testutil"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, dir string, args ...string) result {
	t.Helper()
	t.Chdir(dir)
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func assertFatal(t *testing.T, res result, placeholder string, code int) {
	t.Helper()
	assert.Equal(t, code, res.code, "stderr: %s", res.stderr)
	assert.Contains(t, res.stderr, "ERROR: ["+placeholder+"]")
	assert.Contains(t, res.stderr, fmt.Sprintf("FATAL EXIT CODE: %d", code))
}

func emptyDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestHelpListsCommands(t *testing.T) {
	res := runCLI(t, emptyDir(t), "--help")
	require.Equal(t, 0, res.code)
	for _, name := range []string{"regression", "oracle", "history", "feff", "feffmpi", "rdinp", "pot", "ff2x", "sfconv", "fullspectrum"} {
		assert.Contains(t, res.stdout, name)
	}
	assert.Contains(t, res.stdout, "Module Commands:")
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"feffmpi without nprocs", []string{"feffmpi"}, "requires exactly one argument: <nprocs>"},
		{"feffmpi not an integer", []string{"feffmpi", "many"}, "Invalid process count 'many'"},
		{"feffmpi zero", []string{"feffmpi", "0"}, "Invalid process count '0'"},
		{"module positional argument", []string{"pot", "unexpected"}, "Command 'pot' does not accept positional arguments."},
		{"unknown flag", []string{"regression", "--bogus"}, "unknown flag: --bogus"},
		{"unknown command", []string{"frobnicate"}, "unknown command"},
		{"oracle without capture mode", []string{"oracle"}, "INPUT.CLI_USAGE"},
		{"oracle with both capture modes", []string{"oracle", "--capture-runner", "x", "--capture-bin-dir", "y"}, "INPUT.CLI_USAGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, emptyDir(t), tt.args...)
			assertFatal(t, res, "INPUT.CLI_USAGE", 2)
			assert.Contains(t, res.stderr, tt.want)
			assert.Empty(t, res.stdout)
		})
	}
}

func TestInvalidOutputFromEnvironment(t *testing.T) {
	t.Setenv("FEFFCHECK_OUTPUT", "markdown")
	res := runCLI(t, emptyDir(t), "rdinp")
	assertFatal(t, res, "INPUT.CLI_CONFIG", 2)
	assert.Contains(t, res.stderr, "unknown output format 'markdown'")
}

func TestAliasCommand(t *testing.T) {
	tests := []struct {
		argv0 string
		want  string
	}{
		{"/usr/local/bin/feffcheck", ""},
		{"feff", "feff"},
		{"/opt/feff/bin/feffmpi", "feffmpi"},
		{"pot", "pot"},
		{"FF2X.EXE", ""},
		{"ff2x.EXE", "ff2x"},
		{"sfconv.exe", "sfconv"},
		{"debye", ""},
	}
	for _, tt := range tests {
		t.Run(tt.argv0, func(t *testing.T) {
			assert.Equal(t, tt.want, aliasCommand(tt.argv0))
		})
	}
}

func TestModuleOutsideWorkspaceUsesDefaultFixture(t *testing.T) {
	dir := emptyDir(t)
	testutil.StageCopperInput(t, dir)

	res := runCLI(t, dir, "rdinp")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "RDINP completed for fixture 'FX-RDINP-001' (19 artifacts).\n", res.stdout)
	assert.FileExists(t, filepath.Join(dir, "pot.inp"))
	assert.FileExists(t, filepath.Join(dir, "geom.dat"))
}

func TestModuleInputDirectorySelection(t *testing.T) {
	root := testutil.SetupWorkspace(t,
		testutil.Fixture{ID: "FX-RDINP-001", ModulesCovered: []string{"RDINP"}, InputDirectory: "cases/a"},
		testutil.Fixture{ID: "FX-RDINP-007", ModulesCovered: []string{"RDINP"}, InputDirectory: "cases/b"},
	)
	dir := filepath.Join(root, "cases", "b")
	testutil.StageCopperInput(t, dir)

	res := runCLI(t, dir, "rdinp")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "RDINP completed for fixture 'FX-RDINP-007' (19 artifacts).\n", res.stdout)
}

func TestModuleExecutionFailure(t *testing.T) {
	root := testutil.SetupWorkspace(t, testutil.Fixture{ID: "FX-POT-001", ModulesCovered: []string{"POT"}})

	res := runCLI(t, root, "pot")
	assertFatal(t, res, "INPUT.CLI_FIXTURE_LOOKUP", 2)
	assert.Contains(t, res.stderr, "unable to resolve fixture for module POT")
	assert.NoFileExists(t, filepath.Join(root, "pot.bin"))
}

func workflowWorkspace(t *testing.T) string {
	t.Helper()
	root := testutil.SetupWorkspace(t,
		testutil.Fixture{ID: "FX-RDINP-001", ModulesCovered: []string{"RDINP"}},
		testutil.Fixture{
			ID:             "FX-WORKFLOW-001",
			FixtureType:    "workflow",
			ModulesCovered: []string{"POT", "RDINP"},
			InputDirectory: "cases/cu",
		},
	)
	dir := filepath.Join(root, "cases", "cu")
	testutil.StageCopperInput(t, dir)
	return dir
}

func TestFeffRunsSerialChain(t *testing.T) {
	dir := workflowWorkspace(t)

	res := runCLI(t, dir, "feff")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Completed serial workflow for fixture 'FX-WORKFLOW-001'.\n", res.stdout)
	assert.FileExists(t, filepath.Join(dir, "pot.inp"))
	assert.FileExists(t, filepath.Join(dir, "pot.bin"))
	assert.Empty(t, res.stderr)
}

func TestFeffMPIWarnsAboutProcessCount(t *testing.T) {
	dir := workflowWorkspace(t)

	res := runCLI(t, dir, "feffmpi", "4")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "WARNING: [RUN.MPI_DEFERRED]")
	assert.Contains(t, res.stderr, "requested nprocs=4")
	assert.Contains(t, res.stdout, "Completed serial workflow for fixture 'FX-WORKFLOW-001'.")

	single := runCLI(t, dir, "feffmpi", "1")
	require.Equal(t, 0, single.code, single.stderr)
	assert.NotContains(t, single.stderr, "RUN.MPI_DEFERRED")
}

func TestFeffErrors(t *testing.T) {
	t.Run("outside workspace", func(t *testing.T) {
		res := runCLI(t, emptyDir(t), "feff")
		assertFatal(t, res, "INPUT.CLI_WORKSPACE", 2)
	})

	t.Run("no workflow fixture", func(t *testing.T) {
		root := testutil.SetupWorkspace(t, testutil.Fixture{ID: "FX-RDINP-001", ModulesCovered: []string{"RDINP"}})
		res := runCLI(t, root, "feff")
		assertFatal(t, res, "INPUT.CLI_WORKFLOW_FIXTURE", 2)
	})
}

// comparisonWorkspace creates a workspace whose single fixture has a
// baseline tree; actual trees are staged by each test.
func comparisonWorkspace(t *testing.T) string {
	t.Helper()
	root := testutil.SetupWorkspace(t, testutil.Fixture{ID: "FX-A", ModulesCovered: []string{"POT"}})
	roottestutil.WriteTree(t, root, map[string]string{
		"artifacts/fortran-baselines/FX-A/baseline/pot.dat": "1.0 2.0\n",
	})
	return root
}

func TestRegressionPass(t *testing.T) {
	root := comparisonWorkspace(t)

	res := runCLI(t, root, "regression")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Regression status: PASS\n")
	assert.Contains(t, res.stdout, "Fixtures: 1 total, 0 failed\n")
	assert.Contains(t, res.stdout, "JSON report: "+filepath.Join(root, "artifacts", "regression", "report.json"))
	assert.FileExists(t, filepath.Join(root, "artifacts", "regression", "report.json"))
}

func TestRegressionFail(t *testing.T) {
	root := comparisonWorkspace(t)
	roottestutil.WriteTree(t, root, map[string]string{
		"artifacts/actual/FX-A/baseline/pot.dat": "1.0 2.5\n",
	})

	res := runCLI(t, root, "regression", "--actual-root", "artifacts/actual")
	assert.Equal(t, 1, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Regression status: FAIL\n")
	assert.Contains(t, res.stdout, "Fixture FX-A mismatches:\n")
	assert.Contains(t, res.stdout, "JSON report: ")
	assert.NotContains(t, res.stderr, "FATAL EXIT CODE")

	report := roottestutil.ReadJSON(t, filepath.Join(root, "artifacts", "regression", "report.json"))
	assert.Equal(t, false, report["passed"])
	assert.Equal(t, float64(1), report["mismatch_artifact_count"])
}

func TestRegressionJSONOutput(t *testing.T) {
	root := comparisonWorkspace(t)

	res := runCLI(t, root, "-o", "json", "regression")
	require.Equal(t, 0, res.code, res.stderr)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.Equal(t, true, doc["passed"])
	assert.Equal(t, float64(0), doc["failed_fixture_count"])
}

func TestRegressionMissingManifest(t *testing.T) {
	root := comparisonWorkspace(t)

	res := runCLI(t, root, "regression", "--manifest", "missing.json")
	assertFatal(t, res, "IO.REGRESSION_MANIFEST", 3)
	assert.NoFileExists(t, filepath.Join(root, "artifacts", "regression", "report.json"))
}

func TestRegressionRunPOTMismatchIsFatal(t *testing.T) {
	root := testutil.SetupWorkspace(t, testutil.Fixture{ID: "FX-POT-001", ModulesCovered: []string{"POT"}})
	roottestutil.WriteTree(t, root, map[string]string{
		"artifacts/fortran-baselines/FX-POT-001/baseline/pot.inp":  "BROKEN POT INPUT\n",
		"artifacts/fortran-baselines/FX-POT-001/baseline/geom.dat": " nat, nph = 1 0\n 1 0.0 0.0 0.0 0 1\n",
	})

	res := runCLI(t, root, "regression", "--run-pot")
	assertFatal(t, res, "RUN.POT_INPUT_MISMATCH", 4)
	assert.Empty(t, res.stdout)
	assert.NoFileExists(t, filepath.Join(root, "artifacts", "regression", "report.json"))
}

func TestRegressionRunComptonMissingInputIsFatal(t *testing.T) {
	root := testutil.SetupWorkspace(t, testutil.Fixture{ID: "FX-COMPTON-001", ModulesCovered: []string{"COMPTON"}})
	roottestutil.WriteTree(t, root, map[string]string{
		"artifacts/fortran-baselines/FX-COMPTON-001/baseline/compton.inp": " run compton module?\n T\n pqmax, npq\n 5.0 100\n",
		"artifacts/fortran-baselines/FX-COMPTON-001/baseline/pot.bin":     "x",
	})

	res := runCLI(t, root, "regression", "--run-compton")
	assertFatal(t, res, "IO.COMPTON_INPUT_READ", 3)
	assert.Contains(t, res.stderr, "gg_slice.bin")
	assert.Empty(t, res.stdout)
	assert.NoFileExists(t, filepath.Join(root, "artifacts", "regression", "report.json"))
}

func TestRegressionConfigFile(t *testing.T) {
	root := comparisonWorkspace(t)
	roottestutil.WriteTree(t, root, map[string]string{
		"artifacts/actual/FX-A/baseline/pot.dat": "1.0 2.5\n",
		"feffcheck.yaml": "regression:\n  actual_root: artifacts/actual\n  report: out/report.json\n",
	})

	res := runCLI(t, root, "regression")
	assert.Equal(t, 1, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(root, "out", "report.json"))
}

func TestHistoryRecordsRuns(t *testing.T) {
	root := comparisonWorkspace(t)

	res := runCLI(t, root, "regression", "--history-db", ".feffcheck/history.db")
	require.Equal(t, 0, res.code, res.stderr)
	require.FileExists(t, filepath.Join(root, ".feffcheck", "history.db"))

	list := runCLI(t, root, "history", "--history-db", ".feffcheck/history.db")
	require.Equal(t, 0, list.code, list.stderr)
	assert.Contains(t, list.stdout, "Regression")
	assert.Contains(t, list.stdout, "PASS")
	assert.Contains(t, list.stdout, "1 run(s)")

	asJSON := runCLI(t, root, "history", "--history-db", ".feffcheck/history.db", "-o", "json")
	require.Equal(t, 0, asJSON.code, asJSON.stderr)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(asJSON.stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "regression", rows[0]["command"])
	assert.Equal(t, true, rows[0]["passed"])
}

func TestHistoryRequiresLedger(t *testing.T) {
	res := runCLI(t, emptyDir(t), "history")
	assertFatal(t, res, "INPUT.CLI_USAGE", 2)
}

func TestOracleOutsideWorkspace(t *testing.T) {
	res := runCLI(t, emptyDir(t), "oracle", "--capture-bin-dir", "/nonexistent")
	assertFatal(t, res, "INPUT.CLI_WORKSPACE", 2)
}

func TestVersionCommand(t *testing.T) {
	res := runCLI(t, emptyDir(t), "version")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "feffcheck v"+Version)
}

func TestMainUsesExecutableName(t *testing.T) {
	dir := emptyDir(t)
	testutil.StageCopperInput(t, dir)
	t.Chdir(dir)

	stdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	code := Main([]string{filepath.Join("bin", "rdinp")})
	os.Stdout = stdout
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "RDINP completed for fixture 'FX-RDINP-001' (19 artifacts).\n", buf.String())
}
