// Package policy models the tolerance policy that selects a comparison mode
// for each artifact.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

// Mode is a comparison mode.
type Mode string

// Comparison modes.
const (
	ModeExactText      Mode = "exact_text"
	ModeWhitespaceText Mode = "whitespace_insensitive_text"
	ModeNumeric        Mode = "numeric_tolerance"
)

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeExactText, ModeWhitespaceText, ModeNumeric:
		return true
	}
	return false
}

// Tolerance bounds numeric differences.
type Tolerance struct {
	AbsTol        float64 `json:"absTol" yaml:"absTol"`
	RelTol        float64 `json:"relTol" yaml:"relTol"`
	RelativeFloor float64 `json:"relativeFloor" yaml:"relativeFloor"`
}

// Category maps a set of globs onto a mode.
type Category struct {
	ID        string     `json:"id" yaml:"id"`
	Mode      Mode       `json:"mode" yaml:"mode"`
	FileGlobs []string   `json:"fileGlobs" yaml:"fileGlobs"`
	Tolerance *Tolerance `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// NumericParsing configures numeric tokenization during comparison.
type NumericParsing struct {
	CommentPrefixes []string `json:"commentPrefixes,omitempty" yaml:"commentPrefixes,omitempty"`
}

// Policy is the comparison policy document.
type Policy struct {
	DefaultMode    Mode           `json:"defaultMode" yaml:"defaultMode"`
	NumericParsing NumericParsing `json:"numericParsing" yaml:"numericParsing"`
	Categories     []Category     `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Resolution is the outcome of resolving an artifact path against the policy.
type Resolution struct {
	Mode            Mode
	MatchedCategory *string
	Tolerance       Tolerance
}

// Load reads a policy from path. Files ending in .yaml or .yml are decoded as
// YAML, everything else as JSON.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.IOError("IO.POLICY_READ", "failed to read policy '%s': %v", path, err)
	}
	return Parse(data, isYAML(path))
}

// Parse decodes and validates a policy document.
func Parse(data []byte, asYAML bool) (*Policy, error) {
	var p Policy
	if asYAML {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, core.InputError("INPUT.POLICY_PARSE", "failed to parse policy: %v", err)
		}
	} else if err := json.Unmarshal(data, &p); err != nil {
		return nil, core.InputError("INPUT.POLICY_PARSE", "failed to parse policy: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks modes and glob syntax.
func (p *Policy) Validate() error {
	if !p.DefaultMode.Valid() {
		return core.InputError("INPUT.POLICY_MODE", "unknown defaultMode %q", p.DefaultMode)
	}
	for i, c := range p.Categories {
		if c.ID == "" {
			return core.InputError("INPUT.POLICY_CATEGORY", "category %d has no id", i)
		}
		if !c.Mode.Valid() {
			return core.InputError("INPUT.POLICY_MODE", "category '%s' has unknown mode %q", c.ID, c.Mode)
		}
		for _, g := range c.FileGlobs {
			if !doublestar.ValidatePattern(g) {
				return core.InputError("INPUT.POLICY_GLOB", "category '%s' has invalid glob %q", c.ID, g)
			}
		}
		if c.Tolerance != nil && (c.Tolerance.AbsTol < 0 || c.Tolerance.RelTol < 0 || c.Tolerance.RelativeFloor < 0) {
			return core.InputError("INPUT.POLICY_TOLERANCE", "category '%s' has a negative tolerance", c.ID)
		}
	}
	return nil
}

// Resolve selects the mode for an artifact path. The first category with a
// matching glob wins; otherwise the default mode applies with a zero
// tolerance.
func (p *Policy) Resolve(artifactPath string) Resolution {
	rel := filepath.ToSlash(artifactPath)
	for i := range p.Categories {
		c := &p.Categories[i]
		if !matchesAny(c.FileGlobs, rel) {
			continue
		}
		res := Resolution{Mode: c.Mode, MatchedCategory: &c.ID}
		if c.Tolerance != nil {
			res.Tolerance = *c.Tolerance
		}
		return res
	}
	return Resolution{Mode: p.DefaultMode}
}

// CommentPrefixes returns the configured comment prefixes.
func (p *Policy) CommentPrefixes() []string {
	return p.NumericParsing.CommentPrefixes
}

func matchesAny(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// String renders a short description for logs.
func (r Resolution) String() string {
	if r.MatchedCategory == nil {
		return fmt.Sprintf("%s (default)", r.Mode)
	}
	return fmt.Sprintf("%s (%s)", r.Mode, *r.MatchedCategory)
}
