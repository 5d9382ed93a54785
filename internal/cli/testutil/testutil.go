// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/cli/output"
	roottestutil "github.com/leapstack-labs/feffcheck/internal/testutil"
)

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// Fixture is a manifest entry for test workspaces.
type Fixture struct {
	ID             string   `json:"id"`
	FixtureType    string   `json:"fixtureType,omitempty"`
	ModulesCovered []string `json:"modulesCovered"`
	InputDirectory string   `json:"inputDirectory,omitempty"`
}

// ExactPolicy compares every artifact byte for byte.
var ExactPolicy = map[string]any{"defaultMode": "exact_text"}

// SetupWorkspace creates a workspace with the given fixtures and an exact
// policy, and returns its root with symlinks resolved.
func SetupWorkspace(t *testing.T, fixtures ...Fixture) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	if fixtures == nil {
		fixtures = []Fixture{}
	}
	return roottestutil.Workspace(t, root, map[string]any{"fixtures": fixtures}, ExactPolicy)
}

// StageCopperInput writes the copper feff.inp into dir.
func StageCopperInput(t *testing.T, dir string) {
	t.Helper()
	roottestutil.WriteTree(t, dir, map[string]string{"feff.inp": roottestutil.CopperDeck})
}
