// Package config provides layered configuration for the feffcheck CLI.
//
// Values come from built-in defaults, an optional feffcheck.yaml in the
// workspace root, FEFFCHECK_ environment variables and explicitly set
// flags, in increasing order of precedence.
package config

import (
	"time"

	"github.com/leapstack-labs/feffcheck/internal/oracle"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// Config holds all CLI configuration options.
type Config struct {
	WorkspaceRoot string `koanf:"workspace_root"`
	// WorkspaceFound is false when no ancestor of the working directory
	// holds the fixture manifest and no root was given explicitly
	WorkspaceFound bool         `koanf:"-"`
	Verbose        bool         `koanf:"verbose"`
	OutputFormat   string       `koanf:"output"`
	HistoryDB      string       `koanf:"history_db"`
	Regression     RunConfig    `koanf:"regression"`
	Oracle         OracleConfig `koanf:"oracle"`
}

// RunConfig holds the locations shared by the regression and oracle runs.
type RunConfig struct {
	Manifest       string `koanf:"manifest"`
	Policy         string `koanf:"policy"`
	BaselineRoot   string `koanf:"baseline_root"`
	BaselineSubdir string `koanf:"baseline_subdir"`
	ActualRoot     string `koanf:"actual_root"`
	ActualSubdir   string `koanf:"actual_subdir"`
	Report         string `koanf:"report"`
}

// OracleConfig extends RunConfig with the capture settings.
type OracleConfig struct {
	RunConfig      `koanf:",squash"`
	CaptureTimeout time.Duration `koanf:"capture_timeout"`
}

// Default configuration values.
const (
	DefaultOutput  = "auto"
	ConfigFileName = "feffcheck.yaml"
	EnvPrefix      = "FEFFCHECK_"
)

// pathKeys are resolved to absolute paths after loading.
var pathKeys = []string{
	"history_db",
	"regression.manifest", "regression.policy", "regression.baseline_root", "regression.actual_root", "regression.report",
	"oracle.manifest", "oracle.policy", "oracle.baseline_root", "oracle.actual_root", "oracle.report",
}

func defaults() map[string]any {
	return map[string]any{
		"verbose":                    false,
		"output":                     DefaultOutput,
		"history_db":                 "",
		"regression.manifest":        regression.DefaultManifestPath,
		"regression.policy":          regression.DefaultPolicyPath,
		"regression.baseline_root":   regression.DefaultBaselineRoot,
		"regression.baseline_subdir": regression.DefaultBaselineSubdir,
		"regression.actual_root":     regression.DefaultActualRoot,
		"regression.actual_subdir":   regression.DefaultActualSubdir,
		"regression.report":          regression.DefaultReportPath,
		"oracle.manifest":            regression.DefaultManifestPath,
		"oracle.policy":              regression.DefaultPolicyPath,
		"oracle.baseline_root":       oracle.DefaultOracleRoot,
		"oracle.baseline_subdir":     oracle.DefaultOracleSubdir,
		"oracle.actual_root":         oracle.DefaultActualRoot,
		"oracle.actual_subdir":       oracle.DefaultActualSubdir,
		"oracle.report":              oracle.DefaultReportPath,
		"oracle.capture_timeout":     "0s",
	}
}
