package regression

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

// DefaultManifestPath is the manifest location relative to the workspace root.
const DefaultManifestPath = "tasks/golden-fixture-manifest.json"

// Threshold decides whether a fixture passes given its artifact verdicts.
type Threshold struct {
	MinimumArtifactPassRate *float64 `json:"minimumArtifactPassRate,omitempty" yaml:"minimumArtifactPassRate,omitempty"`
	MaxArtifactFailures     *int     `json:"maxArtifactFailures,omitempty" yaml:"maxArtifactFailures,omitempty"`
}

// Accepts reports whether failed of total artifacts is within the threshold.
// An unset threshold requires every artifact to pass.
func (t *Threshold) Accepts(total, failed int) bool {
	minRate, maxFailures := 1.0, 0
	if t != nil && t.MinimumArtifactPassRate != nil {
		minRate = *t.MinimumArtifactPassRate
	}
	if t != nil && t.MaxArtifactFailures != nil {
		maxFailures = *t.MaxArtifactFailures
	}
	rate := 1.0
	if total > 0 {
		rate = float64(total-failed) / float64(total)
	}
	return failed <= maxFailures && rate >= minRate
}

// ComparisonConfig carries comparison overrides at manifest or fixture level.
type ComparisonConfig struct {
	PassFailThreshold *Threshold `json:"passFailThreshold,omitempty" yaml:"passFailThreshold,omitempty"`
}

// BaselineSource names where a fixture's reference outputs came from.
type BaselineSource struct {
	Kind string `json:"kind" yaml:"kind"`
	Path string `json:"path" yaml:"path"`
}

// Fixture is one manifest entry.
type Fixture struct {
	ID              string            `json:"id" yaml:"id"`
	FixtureType     string            `json:"fixtureType,omitempty" yaml:"fixtureType,omitempty"`
	ModulesCovered  []string          `json:"modulesCovered,omitempty" yaml:"modulesCovered,omitempty"`
	InputDirectory  string            `json:"inputDirectory,omitempty" yaml:"inputDirectory,omitempty"`
	EntryFiles      []string          `json:"entryFiles,omitempty" yaml:"entryFiles,omitempty"`
	BaselineStatus  string            `json:"baselineStatus,omitempty" yaml:"baselineStatus,omitempty"`
	BaselineSources []BaselineSource  `json:"baselineSources,omitempty" yaml:"baselineSources,omitempty"`
	Comparison      *ComparisonConfig `json:"comparison,omitempty" yaml:"comparison,omitempty"`
}

// Covers reports whether the fixture lists m in modulesCovered. Tags,
// display names and command names are all accepted.
func (f Fixture) Covers(m core.Module) bool {
	for _, name := range f.ModulesCovered {
		if covered, err := core.ParseModule(name); err == nil && covered == m {
			return true
		}
	}
	return false
}

// Modules returns the covered modules in serial-chain order.
func (f Fixture) Modules() []core.Module {
	var out []core.Module
	for _, m := range core.SerialChain {
		if f.Covers(m) {
			out = append(out, m)
		}
	}
	return out
}

// IsWorkflow reports whether the fixture exercises more than one module.
func (f Fixture) IsWorkflow() bool {
	return strings.EqualFold(f.FixtureType, "workflow") || len(f.ModulesCovered) > 1
}

// EntryFile returns the entryFiles item equal to name case-insensitively,
// or name itself.
func (f Fixture) EntryFile(name string) string {
	for _, entry := range f.EntryFiles {
		if strings.EqualFold(entry, name) {
			return entry
		}
	}
	return name
}

// Manifest is the golden fixture manifest.
type Manifest struct {
	DefaultComparison *ComparisonConfig `json:"defaultComparison,omitempty" yaml:"defaultComparison,omitempty"`
	Fixtures          []Fixture         `json:"fixtures" yaml:"fixtures"`
}

// ThresholdFor returns the fixture threshold, falling back to the manifest
// default.
func (m *Manifest) ThresholdFor(f Fixture) *Threshold {
	if f.Comparison != nil && f.Comparison.PassFailThreshold != nil {
		return f.Comparison.PassFailThreshold
	}
	if m.DefaultComparison != nil {
		return m.DefaultComparison.PassFailThreshold
	}
	return nil
}

// Fixture returns the fixture with the given id.
func (m *Manifest) Fixture(id string) (Fixture, bool) {
	for _, f := range m.Fixtures {
		if f.ID == id {
			return f, true
		}
	}
	return Fixture{}, false
}

// LoadManifest reads a JSON manifest, or YAML when the extension is .yaml or
// .yml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.IOError("IO.REGRESSION_MANIFEST", "manifest '%s' does not exist", path)
		}
		return nil, core.IOError("IO.REGRESSION_MANIFEST", "failed to read manifest '%s': %v", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	m, err := ParseManifest(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, core.InputError("INPUT.REGRESSION_MANIFEST", "manifest '%s': %v", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates manifest bytes.
func ParseManifest(data []byte, asYAML bool) (*Manifest, error) {
	var m Manifest
	if asYAML {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]bool, len(m.Fixtures))
	for i, f := range m.Fixtures {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("fixture %d has an empty id", i)
		}
		if strings.ContainsAny(f.ID, `/\`) || f.ID == "." || f.ID == ".." {
			return fmt.Errorf("fixture id '%s' is not a plain directory name", f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate fixture id '%s'", f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}
