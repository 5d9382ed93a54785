// Package oracle captures reference baselines with the external capture
// script and then runs the regression comparison against them.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// captureWaitDelay bounds how long output pipes may stay open after the
// script is killed.
const captureWaitDelay = 2 * time.Second

// CaptureScript is the capture entrypoint relative to the workspace root.
const CaptureScript = "scripts/fortran/capture-baselines.sh"

// Default locations, relative to the workspace root.
const (
	DefaultOracleRoot   = "artifacts/fortran-oracle-capture"
	DefaultOracleSubdir = "outputs"
	DefaultActualRoot   = "artifacts/oracle-actual"
	DefaultActualSubdir = "actual"
	DefaultReportPath   = "artifacts/regression/oracle-report.json"
)

// CaptureMode selects how the capture script locates the reference binaries.
type CaptureMode struct {
	// Runner is a shell command the script uses to run each module
	Runner string
	// BinDir is a directory holding prebuilt reference binaries
	BinDir string
}

// Validate requires exactly one of Runner and BinDir.
func (m CaptureMode) Validate() error {
	runner, binDir := strings.TrimSpace(m.Runner) != "", strings.TrimSpace(m.BinDir) != ""
	switch {
	case runner && binDir:
		return core.InputError("INPUT.CLI_USAGE", "use either '--capture-runner' or '--capture-bin-dir', not both")
	case !runner && !binDir:
		return core.InputError("INPUT.CLI_USAGE", "missing required oracle capture mode ('--capture-runner' or '--capture-bin-dir')")
	}
	return nil
}

func (m CaptureMode) args() []string {
	if m.Runner != "" {
		return []string{"--runner", m.Runner}
	}
	return []string{"--bin-dir", m.BinDir}
}

// Config holds oracle runner configuration.
type Config struct {
	// Regression is the comparison run; BaselineRoot receives the capture output
	Regression regression.Config
	// WorkspaceRoot hosts the capture script and is its working directory
	WorkspaceRoot string
	Capture       CaptureMode
	// AllowMissingEntryFiles lets the script skip fixtures without inputs
	AllowMissingEntryFiles bool
	// CaptureTimeout bounds the capture subprocess (0 means no limit)
	CaptureTimeout time.Duration
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// DefaultConfig returns the oracle defaults layered over the regression ones.
func DefaultConfig() Config {
	reg := regression.DefaultConfig()
	reg.BaselineRoot = DefaultOracleRoot
	reg.BaselineSubdir = DefaultOracleSubdir
	reg.ActualRoot = DefaultActualRoot
	reg.ActualSubdir = DefaultActualSubdir
	reg.ReportPath = DefaultReportPath
	return Config{Regression: reg}
}

// Runner captures baselines and compares against them.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an oracle runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Regression.Logger == nil {
		cfg.Regression.Logger = logger
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run validates the configuration, runs the capture script and then the
// regression comparison. A failed capture returns before any report exists.
func (r *Runner) Run(ctx context.Context) (*regression.Report, error) {
	if err := r.cfg.Capture.Validate(); err != nil {
		return nil, err
	}
	if r.cfg.CaptureTimeout < 0 {
		return nil, core.InputError("INPUT.CLI_CONFIG", "capture timeout must not be negative")
	}
	if err := r.cfg.Regression.Validate(); err != nil {
		return nil, err
	}
	if err := r.Capture(ctx); err != nil {
		return nil, err
	}
	return regression.New(r.cfg.Regression).Run(ctx)
}

// Capture runs the capture script with the workspace root as its working
// directory.
func (r *Runner) Capture(ctx context.Context) error {
	script := filepath.Join(r.cfg.WorkspaceRoot, filepath.FromSlash(CaptureScript))
	if !artifact.Exists(script) {
		return core.IOError("IO.ORACLE_CAPTURE_SCRIPT", "oracle capture script was not found at '%s'", script)
	}

	if r.cfg.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CaptureTimeout)
		defer cancel()
	}

	args := []string{
		"--manifest", r.cfg.Regression.ManifestPath,
		"--output-root", r.cfg.Regression.BaselineRoot,
		"--all-fixtures",
	}
	if r.cfg.AllowMissingEntryFiles {
		args = append(args, "--allow-missing-entry-files")
	}
	args = append(args, r.cfg.Capture.args()...)

	cmd := exec.CommandContext(ctx, script, args...)
	cmd.Dir = r.cfg.WorkspaceRoot
	cmd.WaitDelay = captureWaitDelay
	r.logger.Info("running reference capture", "script", script, "args", args, "timeout", r.cfg.CaptureTimeout)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Debug("capture output", "output", string(out))
	}
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.OrchestrationError("RUN.ORACLE_CAPTURE",
			"oracle capture step exceeded the %s timeout", r.cfg.CaptureTimeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return core.OrchestrationError("RUN.ORACLE_CAPTURE",
			"oracle capture step failed with %s", exitStatus(exitErr))
	}
	return core.IOError("IO.ORACLE_CAPTURE_EXEC",
		"failed to execute oracle capture command '%s': %v", script, err)
}

func exitStatus(err *exec.ExitError) string {
	if code := err.ExitCode(); code >= 0 {
		return fmt.Sprintf("exit code %d", code)
	}
	return "terminated by signal"
}
