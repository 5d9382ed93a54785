package config

import (
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "", "auto", "text", "json":
	default:
		return core.InputError("INPUT.CLI_CONFIG", "unknown output format '%s' (expected auto, text or json)", c.OutputFormat)
	}
	if err := c.Regression.validate("regression"); err != nil {
		return err
	}
	if err := c.Oracle.RunConfig.validate("oracle"); err != nil {
		return err
	}
	if c.Oracle.CaptureTimeout < 0 {
		return core.InputError("INPUT.CLI_CONFIG", "oracle.capture_timeout must not be negative (got %s)", c.Oracle.CaptureTimeout)
	}
	return nil
}

func (r RunConfig) validate(section string) error {
	if strings.TrimSpace(r.BaselineSubdir) == "" {
		return core.InputError("INPUT.CLI_CONFIG", "%s.baseline_subdir must not be empty", section)
	}
	if strings.TrimSpace(r.ActualSubdir) == "" {
		return core.InputError("INPUT.CLI_CONFIG", "%s.actual_subdir must not be empty", section)
	}
	return nil
}
