package oracle

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/testutil"
)

const referenceCapture = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-root) out="$2"; shift ;;
  esac
  shift
done
for id in FX-RDINP-001 FX-RDINP-002; do
  mkdir -p "$out/$id/outputs"
  printf 'reference\n' > "$out/$id/outputs/geom.dat"
done
`

const recordingCapture = `#!/bin/sh
printf '%s\n' "$@" > "$PWD/capture-args.txt"
`

// setupWorkspace lays out two RDINP fixtures sharing a copper deck and
// installs script as the capture entrypoint.
func setupWorkspace(t *testing.T, script string) Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("capture script is a POSIX shell script")
	}
	fixtures := []map[string]any{}
	for _, id := range []string{"FX-RDINP-001", "FX-RDINP-002"} {
		fixtures = append(fixtures, map[string]any{
			"id":             id,
			"modulesCovered": []string{"RDINP"},
			"inputDirectory": "fixtures/cu",
		})
	}
	root := testutil.Workspace(t, t.TempDir(),
		map[string]any{"fixtures": fixtures},
		map[string]any{"defaultMode": "exact_text"})
	testutil.WriteTree(t, root, map[string]string{
		"fixtures/cu/feff.inp": testutil.CopperDeck,
		CaptureScript:          script,
	})
	require.NoError(t, os.Chmod(filepath.Join(root, CaptureScript), 0o755))

	cfg := DefaultConfig()
	cfg.WorkspaceRoot = root
	cfg.Logger = testutil.NewTestLogger(t)
	cfg.Capture = CaptureMode{Runner: ":"}
	reg := &cfg.Regression
	reg.ManifestPath = filepath.Join(root, reg.ManifestPath)
	reg.PolicyPath = filepath.Join(root, reg.PolicyPath)
	reg.BaselineRoot = filepath.Join(root, reg.BaselineRoot)
	reg.ActualRoot = filepath.Join(root, reg.ActualRoot)
	reg.ReportPath = filepath.Join(root, reg.ReportPath)
	reg.WorkspaceRoot = root
	reg.EnableHook(core.ModuleRDINP)
	return cfg
}

func TestOracleReportsMismatches(t *testing.T) {
	cfg := setupWorkspace(t, referenceCapture)

	report, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Equal(t, 2, report.MismatchFixtureCount)

	doc := testutil.ReadJSON(t, cfg.Regression.ReportPath)
	mismatches, ok := doc["mismatch_fixtures"].([]any)
	require.True(t, ok)
	require.Len(t, mismatches, 2)
	for _, m := range mismatches {
		arts := m.(map[string]any)["artifacts"].([]any)
		require.NotEmpty(t, arts)
		for _, a := range arts {
			art := a.(map[string]any)
			assert.NotEmpty(t, art["artifact_path"])
			assert.NotEmpty(t, art["reason"])
		}
	}
	assert.True(t, artifact.Exists(filepath.Join(cfg.Regression.BaselineRoot, "FX-RDINP-001", "outputs", "geom.dat")))
}

func TestCapturePassesArguments(t *testing.T) {
	cfg := setupWorkspace(t, recordingCapture)
	cfg.AllowMissingEntryFiles = true
	cfg.Capture = CaptureMode{BinDir: "/opt/reference/bin"}

	require.NoError(t, New(cfg).Capture(context.Background()))

	data, err := os.ReadFile(filepath.Join(cfg.WorkspaceRoot, "capture-args.txt"))
	require.NoError(t, err)
	want := []string{
		"--manifest", cfg.Regression.ManifestPath,
		"--output-root", cfg.Regression.BaselineRoot,
		"--all-fixtures",
		"--allow-missing-entry-files",
		"--bin-dir", "/opt/reference/bin",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"))
}

func TestCaptureFailureWritesNoReport(t *testing.T) {
	cfg := setupWorkspace(t, "#!/bin/sh\nexit 7\n")

	_, err := New(cfg).Run(context.Background())
	require.Error(t, err)
	ce := core.AsError(err, "SYS.TEST")
	assert.Equal(t, "RUN.ORACLE_CAPTURE", ce.Placeholder)
	assert.Equal(t, "oracle capture step failed with exit code 7", ce.Message)
	assert.Equal(t, core.ExitUsage, ce.ExitCode())
	assert.False(t, artifact.Exists(cfg.Regression.ReportPath))
}

func TestCaptureTimeout(t *testing.T) {
	cfg := setupWorkspace(t, "#!/bin/sh\nexec sleep 5\n")
	cfg.CaptureTimeout = 100 * time.Millisecond

	err := New(cfg).Capture(context.Background())
	require.Error(t, err)
	assert.True(t, core.HasPlaceholder(err, "RUN.ORACLE_CAPTURE"))
	assert.Contains(t, err.Error(), "timeout")
}

func TestCaptureScriptMissing(t *testing.T) {
	cfg := setupWorkspace(t, referenceCapture)
	require.NoError(t, os.Remove(filepath.Join(cfg.WorkspaceRoot, CaptureScript)))

	_, err := New(cfg).Run(context.Background())
	ce := core.AsError(err, "SYS.TEST")
	require.NotNil(t, ce)
	assert.Equal(t, "IO.ORACLE_CAPTURE_SCRIPT", ce.Placeholder)
	assert.Equal(t, core.ExitIO, ce.ExitCode())
}

func TestCaptureModeValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    CaptureMode
		wantErr bool
	}{
		{"runner", CaptureMode{Runner: ":"}, false},
		{"bin dir", CaptureMode{BinDir: "/opt/bin"}, false},
		{"both", CaptureMode{Runner: ":", BinDir: "/opt/bin"}, true},
		{"neither", CaptureMode{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mode.Validate()
			if tt.wantErr {
				assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_USAGE"))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNegativeTimeoutRejected(t *testing.T) {
	cfg := setupWorkspace(t, referenceCapture)
	cfg.CaptureTimeout = -time.Second

	_, err := New(cfg).Run(context.Background())
	assert.True(t, core.HasPlaceholder(err, "INPUT.CLI_CONFIG"))
}
