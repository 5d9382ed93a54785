package regression

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/compare"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/testutil"
)

var exactPolicy = map[string]any{"defaultMode": "exact_text"}

func manifestOf(fixtures ...map[string]any) map[string]any {
	return map[string]any{"fixtures": fixtures}
}

func fixture(id string, modules ...string) map[string]any {
	f := map[string]any{"id": id}
	if len(modules) > 0 {
		f["modulesCovered"] = modules
	}
	return f
}

// setupRun lays out a workspace under a temp dir and returns a config whose
// baseline and actual roots are separate trees.
func setupRun(t *testing.T, manifest, pol any) Config {
	t.Helper()
	root := testutil.Workspace(t, t.TempDir(), manifest, pol)
	return Config{
		ManifestPath:   filepath.Join(root, DefaultManifestPath),
		PolicyPath:     filepath.Join(root, DefaultPolicyPath),
		BaselineRoot:   filepath.Join(root, "baselines"),
		BaselineSubdir: "baseline",
		ActualRoot:     filepath.Join(root, "actuals"),
		ActualSubdir:   "actual",
		ReportPath:     filepath.Join(root, "artifacts", "regression", "report.json"),
		Hooks:          make(map[core.Module]bool),
		WorkspaceRoot:  root,
		Logger:         testutil.NewTestLogger(t),
	}
}

func writeTrees(t *testing.T, cfg Config, id string, baseline, actual map[string]string) {
	t.Helper()
	r := New(cfg)
	if baseline != nil {
		testutil.WriteTree(t, r.BaselineDir(id), baseline)
	}
	if actual != nil {
		testutil.WriteTree(t, r.ActualDir(id), actual)
	}
}

func TestRunPasses(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-CLI-PASS-001")), exactPolicy)
	files := map[string]string{"xmu.dat": "1.0 2.0 3.0\n"}
	writeTrees(t, cfg, "FX-CLI-PASS-001", files, files)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, 0, report.FailedFixtureCount)
	assert.Empty(t, report.MismatchFixtures)

	doc := testutil.ReadJSON(t, cfg.ReportPath)
	assert.Equal(t, true, doc["passed"])
	assert.Contains(t, Summary(report), "Regression status: PASS")
}

func TestRunFails(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-CLI-FAIL-001")), exactPolicy)
	writeTrees(t, cfg, "FX-CLI-FAIL-001",
		map[string]string{"log.dat": "baseline\n"},
		map[string]string{"log.dat": "actual\n"})

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed)

	doc := testutil.ReadJSON(t, cfg.ReportPath)
	assert.Equal(t, false, doc["passed"])
	assert.EqualValues(t, 1, doc["failed_fixture_count"])
	assert.EqualValues(t, 1, doc["mismatch_fixture_count"])
	assert.EqualValues(t, 1, doc["mismatch_artifact_count"])

	want := "Regression status: FAIL\n" +
		"Fixtures: 1 total, 1 failed\n" +
		"Mismatches: 1 fixture(s), 1 artifact(s)\n" +
		"Fixture FX-CLI-FAIL-001 mismatches:\n" +
		"- log.dat: " + report.MismatchFixtures[0].Artifacts[0].ReasonText() + "\n"
	assert.Equal(t, want, Summary(report))
	assert.NotEmpty(t, report.MismatchFixtures[0].Artifacts[0].ReasonText())
}

func TestRunOverflowingDeltaStillWritesReport(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-NUM-001")), map[string]any{"defaultMode": "numeric_tolerance"})
	writeTrees(t, cfg, "FX-NUM-001",
		map[string]string{"x.dat": "1.0e308\n"},
		map[string]string{"x.dat": "-1.0e308\n"})

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed)

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"max_abs_delta": null`)

	doc := testutil.ReadJSON(t, cfg.ReportPath)
	assert.Equal(t, false, doc["passed"])
	assert.EqualValues(t, 1, doc["mismatch_artifact_count"])
}

func TestRunPOTHookMismatchIsFatal(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-POT-001", "POT")), exactPolicy)
	cfg.EnableHook(core.ModulePOT)
	writeTrees(t, cfg, "FX-POT-001", map[string]string{}, map[string]string{
		"pot.inp":  "BROKEN POT INPUT\n",
		"geom.dat": " nat, nph = 1 0\n 1 0.0 0.0 0.0 0 1\n",
	})

	_, err := New(cfg).Run(context.Background())
	require.Error(t, err)
	ce := core.AsError(err, "SYS.TEST")
	assert.Equal(t, "RUN.POT_INPUT_MISMATCH", ce.Placeholder)
	assert.Equal(t, core.ExitComputation, ce.ExitCode())
	assert.False(t, artifact.Exists(cfg.ReportPath))
}

func TestRunComptonMissingBinaryIsFatal(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-COMPTON-001", "COMPTON")), exactPolicy)
	cfg.EnableHook(core.ModuleCOMPTON)
	writeTrees(t, cfg, "FX-COMPTON-001", map[string]string{}, map[string]string{
		"compton.inp": " run compton module?\n T\n pqmax, npq\n 5.0 100\n",
		"pot.bin":     "x",
	})

	_, err := New(cfg).Run(context.Background())
	require.Error(t, err)
	ce := core.AsError(err, "SYS.TEST")
	assert.Equal(t, "IO.COMPTON_INPUT_READ", ce.Placeholder)
	assert.Contains(t, ce.Message, "gg_slice.bin")
	assert.Equal(t, core.ExitIO, ce.ExitCode())
	assert.False(t, artifact.Exists(cfg.ReportPath))
}

func TestRunDisabledHooksDoNotExecute(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-POT-001", "POT")), exactPolicy)
	files := map[string]string{"pot.inp": "BROKEN POT INPUT\n"}
	writeTrees(t, cfg, "FX-POT-001", files, files)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

func TestRunNumericCategoryOnHookOutput(t *testing.T) {
	pol := map[string]any{
		"defaultMode": "exact_text",
		"categories": []map[string]any{{
			"id":        "crpa_screen_numeric",
			"mode":      "numeric_tolerance",
			"fileGlobs": []string{"**/wscrn.dat"},
			"tolerance": map[string]any{"absTol": 1e-8, "relTol": 1e-6, "relativeFloor": 1e-12},
		}},
	}
	cfg := setupRun(t, manifestOf(fixture("FX-CRPA-001", "RDINP", "CRPA")), pol)
	cfg.EnableHook(core.ModuleRDINP)
	cfg.EnableHook(core.ModuleCRPA)
	writeTrees(t, cfg, "FX-CRPA-001", nil, map[string]string{"feff.inp": testutil.CopperDeck})

	r := New(cfg)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// Promote the produced tree to the baseline and compare again.
	produced, err := artifact.ListFiles(r.ActualDir("FX-CRPA-001"))
	require.NoError(t, err)
	require.Contains(t, produced, "wscrn.dat")
	for _, rel := range produced {
		data, err := os.ReadFile(filepath.Join(r.ActualDir("FX-CRPA-001"), rel))
		require.NoError(t, err)
		testutil.WriteTree(t, r.BaselineDir("FX-CRPA-001"), map[string]string{rel: string(data)})
	}

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed)

	var wscrn *compare.Verdict
	for i, v := range report.Fixtures[0].Artifacts {
		if v.ArtifactPath == "wscrn.dat" {
			wscrn = &report.Fixtures[0].Artifacts[i]
		}
	}
	require.NotNil(t, wscrn)
	assert.Equal(t, "numeric_tolerance", string(wscrn.Comparison.Mode))
	require.NotNil(t, wscrn.Comparison.MatchedCategory)
	assert.Equal(t, "crpa_screen_numeric", *wscrn.Comparison.MatchedCategory)
	metrics, ok := wscrn.Comparison.Metrics.(compare.NumericMetrics)
	require.True(t, ok)
	assert.Equal(t, "numeric_tolerance", string(metrics.Kind))
	assert.Greater(t, metrics.ComparedValues, 0)
}

func TestRunRDINPHookReadsInputDirectory(t *testing.T) {
	f := fixture("FX-RDINP-001", "RDINP")
	f["inputDirectory"] = "fixtures/cu"
	f["entryFiles"] = []string{"FEFF.INP"}
	cfg := setupRun(t, manifestOf(f), exactPolicy)
	cfg.EnableHook(core.ModuleRDINP)
	testutil.WriteTree(t, filepath.Join(cfg.WorkspaceRoot, "fixtures", "cu"), map[string]string{
		"FEFF.INP": testutil.CopperDeck,
	})

	r := New(cfg)
	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, artifact.Exists(filepath.Join(r.ActualDir("FX-RDINP-001"), "geom.dat")))
	// Nothing was captured, so every produced artifact lacks a baseline.
	assert.False(t, report.Passed)
	for _, v := range report.MismatchFixtures[0].Artifacts {
		assert.Equal(t, compare.ReasonMissingBaseline, v.ReasonText())
	}
}

func TestRunBothTreesAbsent(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-EMPTY-001")), exactPolicy)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Fixtures, 1)
	arts := report.Fixtures[0].Artifacts
	require.Len(t, arts, 1)
	assert.Equal(t, ".", arts[0].ArtifactPath)
	assert.Equal(t, compare.ReasonMissingBaseline, arts[0].ReasonText())
	assert.NotNil(t, arts[0].Comparison.Metrics)
}

func TestRunThresholdAllowsFailures(t *testing.T) {
	f := fixture("FX-LOOSE-001")
	f["comparison"] = map[string]any{"passFailThreshold": map[string]any{"maxArtifactFailures": 1, "minimumArtifactPassRate": 0.5}}
	cfg := setupRun(t, manifestOf(f, fixture("FX-STRICT-001")), exactPolicy)
	trees := func(id string) {
		writeTrees(t, cfg, id,
			map[string]string{"a.dat": "same\n", "b.dat": "baseline\n"},
			map[string]string{"a.dat": "same\n", "b.dat": "actual\n"})
	}
	trees("FX-LOOSE-001")
	trees("FX-STRICT-001")

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Fixtures[0].Passed)
	assert.False(t, report.Fixtures[1].Passed)
	assert.Equal(t, 1, report.FailedFixtureCount)
	// A passing fixture with a failing artifact is still projected.
	assert.Equal(t, 2, report.MismatchFixtureCount)
	assert.Equal(t, 2, report.MismatchArtifactCount)
	assert.True(t, report.MismatchFixtures[0].Passed)
}

func TestMismatchProjection(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-A-001"), fixture("FX-B-001")), exactPolicy)
	writeTrees(t, cfg, "FX-A-001",
		map[string]string{"a.dat": "1\n", "b.dat": "2\n", "c.dat": "3\n"},
		map[string]string{"a.dat": "1\n", "b.dat": "changed\n", "extra.dat": "4\n"})
	same := map[string]string{"ok.dat": "ok\n"}
	writeTrees(t, cfg, "FX-B-001", same, same)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.MismatchFixtures, 1)
	mf := report.MismatchFixtures[0]
	assert.Equal(t, "FX-A-001", mf.FixtureID)
	paths := make([]string, len(mf.Artifacts))
	for i, v := range mf.Artifacts {
		paths[i] = v.ArtifactPath
		assert.False(t, v.Passed)
	}
	assert.Empty(t, cmp.Diff([]string{"b.dat", "c.dat", "extra.dat"}, paths))
	assert.Equal(t, compare.ReasonMissingActual, mf.Artifacts[1].ReasonText())
	assert.Equal(t, compare.ReasonMissingBaseline, mf.Artifacts[2].ReasonText())
	assert.Equal(t, 3, report.MismatchArtifactCount)
}

func TestReportIsByteIdenticalAcrossRuns(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-DET-001")), exactPolicy)
	writeTrees(t, cfg, "FX-DET-001",
		map[string]string{"<x>&y.dat": "a\n", "sub/y.dat": "1\n"},
		map[string]string{"<x>&y.dat": "b\n", "sub/y.dat": "1\n"})

	_, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)

	_, err = New(cfg).Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, byte('\n'), first[len(first)-1])
	assert.Contains(t, string(first), `"artifact_path": "<x>&y.dat"`)
	assert.NotContains(t, string(first), cfg.WorkspaceRoot)
	assert.Contains(t, string(first), `"artifact_path": "sub/y.dat"`)
}

func TestRunCancelled(t *testing.T) {
	cfg := setupRun(t, manifestOf(fixture("FX-CANCEL-001")), exactPolicy)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg).Run(ctx)
	require.Error(t, err)
	assert.True(t, core.HasPlaceholder(err, "RUN.REGRESSION_CANCELLED"))
	assert.False(t, artifact.Exists(cfg.ReportPath))
}

func TestRunYAMLManifest(t *testing.T) {
	cfg := setupRun(t, manifestOf(), exactPolicy)
	cfg.ManifestPath = filepath.Join(cfg.WorkspaceRoot, "tasks", "manifest.yaml")
	testutil.WriteTree(t, cfg.WorkspaceRoot, map[string]string{
		"tasks/manifest.yaml": "fixtures:\n  - id: FX-YAML-001\n    modulesCovered: [xsph]\n",
	})
	files := map[string]string{"xsect.dat": "1 2\n"}
	writeTrees(t, cfg, "FX-YAML-001", files, files)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Fixtures, 1)
	assert.Equal(t, "FX-YAML-001", report.Fixtures[0].FixtureID)
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadManifest(filepath.Join(dir, "missing.json"))
	assert.True(t, core.HasPlaceholder(err, "IO.REGRESSION_MANIFEST"))

	tests := []struct {
		name string
		body string
	}{
		{"malformed", "{"},
		{"empty id", `{"fixtures":[{"id":""}]}`},
		{"nested id", `{"fixtures":[{"id":"a/b"}]}`},
		{"duplicate id", `{"fixtures":[{"id":"FX-1"},{"id":"FX-1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			testutil.WriteTree(t, dir, map[string]string{tt.name + ".json": tt.body})
			_, err := LoadManifest(path)
			require.Error(t, err)
			ce := core.AsError(err, "SYS.TEST")
			assert.Equal(t, "INPUT.REGRESSION_MANIFEST", ce.Placeholder)
			assert.Equal(t, core.ExitUsage, ce.ExitCode())
		})
	}
}

func TestFixtureModulesFollowSerialChain(t *testing.T) {
	f := Fixture{ID: "FX-WF-001", ModulesCovered: []string{"fms", "SelfEnergy", "RDINP", "bogus"}}
	assert.Equal(t, []core.Module{core.ModuleRDINP, core.ModuleSELF, core.ModuleFMS}, f.Modules())
	assert.True(t, f.IsWorkflow())
	assert.False(t, f.Covers(core.ModulePOT))
}

func TestThresholdAccepts(t *testing.T) {
	rate := 0.75
	failures := 2
	tests := []struct {
		name      string
		threshold *Threshold
		total     int
		failed    int
		want      bool
	}{
		{"nil requires all", nil, 4, 0, true},
		{"nil rejects one", nil, 4, 1, false},
		{"within both", &Threshold{MinimumArtifactPassRate: &rate, MaxArtifactFailures: &failures}, 4, 1, true},
		{"rate too low", &Threshold{MinimumArtifactPassRate: &rate, MaxArtifactFailures: &failures}, 4, 2, false},
		{"max failures", &Threshold{MaxArtifactFailures: &failures}, 4, 2, false},
		{"empty fixture", nil, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.threshold.Accepts(tt.total, tt.failed))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ActualSubdir = "a/b"
	assert.True(t, core.HasPlaceholder(cfg.Validate(), "INPUT.REGRESSION_CONFIG"))

	cfg = DefaultConfig()
	cfg.ReportPath = " "
	assert.True(t, core.HasPlaceholder(cfg.Validate(), "INPUT.REGRESSION_CONFIG"))
}

func TestConfigValidateReportsFirstEmptyField(t *testing.T) {
	for range 20 {
		cfg := Config{BaselineSubdir: "baseline", ActualSubdir: "actual"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, "manifest must not be empty", core.AsError(err, "SYS.TEST").Message)
	}

	cfg := Config{ManifestPath: "m.json", PolicyPath: "p.json"}
	assert.Equal(t, "baseline root must not be empty", core.AsError(cfg.Validate(), "SYS.TEST").Message)
}
