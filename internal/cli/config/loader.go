package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// sectionFlags are command-local flags stored under the command's section.
var sectionFlags = map[string]bool{
	"manifest":        true,
	"policy":          true,
	"baseline-root":   true,
	"baseline-subdir": true,
	"actual-root":     true,
	"actual-subdir":   true,
	"report":          true,
	"capture-timeout": true,
}

// globalFlags are persistent flags stored at the top level.
var globalFlags = map[string]bool{
	"verbose":    true,
	"output":     true,
	"history-db": true,
}

// inferWorkspaceRoot determines the workspace root.
// Priority:
//  1. Explicit --workspace-root flag
//  2. FEFFCHECK_WORKSPACE_ROOT
//  3. Nearest ancestor of cwd holding the fixture manifest
//  4. cwd itself (not found)
func inferWorkspaceRoot(flags *pflag.FlagSet, cwd string) (string, bool) {
	if flags != nil && flags.Changed("workspace-root") {
		if root, _ := flags.GetString("workspace-root"); root != "" {
			return absFrom(root, cwd), true
		}
	}
	if root := os.Getenv(EnvPrefix + "WORKSPACE_ROOT"); root != "" {
		return absFrom(root, cwd), true
	}
	if root, ok := regression.FindWorkspaceRoot(cwd); ok {
		return root, true
	}
	return cwd, false
}

// absFrom resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func absFrom(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// flagKey maps a flag to its config key, or "" when the flag is not a
// config value.
func flagKey(section, name string) string {
	switch {
	case globalFlags[name]:
		return strings.ReplaceAll(name, "-", "_")
	case sectionFlags[name] && section != "":
		return section + "." + strings.ReplaceAll(name, "-", "_")
	}
	return ""
}

// envKey maps FEFFCHECK_REGRESSION__BASELINE_ROOT to regression.baseline_root.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from defaults, the config file, the
// environment and flags. section names the command whose local flags
// (manifest, report, ...) are applied: "regression", "oracle" or "".
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile, section string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, core.IOError("IO.CLI_CWD", "failed to resolve current working directory: %v", err)
	}
	root, found := inferWorkspaceRoot(flags, cwd)

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, core.InternalError("SYS.CLI_CONFIG", "failed to load defaults: %v", err)
	}

	// 2. Find and load config file
	if cfgFile != "" {
		cfgFile = absFrom(cfgFile, cwd)
	} else {
		for _, name := range []string{ConfigFileName, "feffcheck.yml"} {
			candidate := filepath.Join(root, name)
			if artifact.Exists(candidate) {
				cfgFile = candidate
				break
			}
		}
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, core.InputError("INPUT.CLI_CONFIG", "error reading config file '%s': %v", configFileUsed, err)
		}
	}

	// 3. Load environment variables (FEFFCHECK_ prefix, "__" separates sections)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, core.InputError("INPUT.CLI_CONFIG", "failed to load environment: %v", err)
	}

	// 4. Load flags that were explicitly set. Their paths are relative to cwd.
	fromFlags := map[string]bool{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := flagKey(section, f.Name)
			if key == "" {
				return "", nil
			}
			fromFlags[key] = true
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, core.InputError("INPUT.CLI_CONFIG", "failed to load flags: %v", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, core.InputError("INPUT.CLI_CONFIG", "unable to decode config: %v", err)
	}

	// 6. Resolve paths: flag values against cwd, everything else against the root
	cfg.WorkspaceRoot = root
	cfg.WorkspaceFound = found
	for _, key := range pathKeys {
		base := root
		if fromFlags[key] {
			base = cwd
		}
		*cfg.pathField(key) = absFrom(*cfg.pathField(key), base)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// pathField returns the field backing a path key.
func (c *Config) pathField(key string) *string {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return &c.HistoryDB
	}
	run := &c.Regression
	if section == "oracle" {
		run = &c.Oracle.RunConfig
	}
	switch name {
	case "manifest":
		return &run.Manifest
	case "policy":
		return &run.Policy
	case "baseline_root":
		return &run.BaselineRoot
	case "actual_root":
		return &run.ActualRoot
	default:
		return &run.Report
	}
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// NewLogger builds the CLI logger: warnings and errors only unless verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// LoggerKey returns the context key used for storing the logger.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
