package regression

import (
	"log/slog"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

// Default locations, relative to the workspace root.
const (
	DefaultPolicyPath     = "tasks/numeric-tolerance-policy.json"
	DefaultBaselineRoot   = "artifacts/fortran-baselines"
	DefaultBaselineSubdir = "baseline"
	DefaultActualRoot     = "artifacts/fortran-baselines"
	DefaultActualSubdir   = "baseline"
	DefaultReportPath     = "artifacts/regression/report.json"
)

// Config holds regression runner configuration.
type Config struct {
	// ManifestPath is the golden fixture manifest (JSON or YAML)
	ManifestPath string
	// PolicyPath is the tolerance policy (JSON or YAML)
	PolicyPath string
	// BaselineRoot/<fixture>/BaselineSubdir is the reference tree
	BaselineRoot   string
	BaselineSubdir string
	// ActualRoot/<fixture>/ActualSubdir is the tree under test; hooks write here
	ActualRoot   string
	ActualSubdir string
	// ReportPath receives report.json
	ReportPath string
	// Hooks enables pre-compare execution per module
	Hooks map[core.Module]bool
	// WorkspaceRoot resolves relative fixture input directories (optional)
	WorkspaceRoot string
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		ManifestPath:   DefaultManifestPath,
		PolicyPath:     DefaultPolicyPath,
		BaselineRoot:   DefaultBaselineRoot,
		BaselineSubdir: DefaultBaselineSubdir,
		ActualRoot:     DefaultActualRoot,
		ActualSubdir:   DefaultActualSubdir,
		ReportPath:     DefaultReportPath,
		Hooks:          make(map[core.Module]bool),
	}
}

// EnableHook turns on the pre-compare hook for m.
func (c *Config) EnableHook(m core.Module) {
	if c.Hooks == nil {
		c.Hooks = make(map[core.Module]bool)
	}
	c.Hooks[m] = true
}

// HookEnabled reports whether the hook for m is on.
func (c *Config) HookEnabled(m core.Module) bool {
	return c.Hooks[m]
}

// Validate rejects configurations the runner cannot act on.
func (c *Config) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"manifest", c.ManifestPath},
		{"policy", c.PolicyPath},
		{"baseline root", c.BaselineRoot},
		{"baseline subdir", c.BaselineSubdir},
		{"actual root", c.ActualRoot},
		{"actual subdir", c.ActualSubdir},
		{"report", c.ReportPath},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return core.InputError("INPUT.REGRESSION_CONFIG", "%s must not be empty", f.name)
		}
	}
	for _, sub := range []string{c.BaselineSubdir, c.ActualSubdir} {
		if strings.ContainsAny(sub, `/\`) || sub == ".." {
			return core.InputError("INPUT.REGRESSION_CONFIG", "subdirectory name '%s' must be a single path element", sub)
		}
	}
	return nil
}
