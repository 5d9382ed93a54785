package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

const samplePolicy = `{
  "defaultMode": "exact_text",
  "numericParsing": {"commentPrefixes": ["#"]},
  "categories": [
    {
      "id": "crpa_screen_numeric",
      "mode": "numeric_tolerance",
      "fileGlobs": ["**/wscrn.dat"],
      "tolerance": {"absTol": 1e-8, "relTol": 1e-6, "relativeFloor": 1e-12}
    },
    {
      "id": "logs",
      "mode": "whitespace_insensitive_text",
      "fileGlobs": ["log?.dat", "logs/*.dat"]
    },
    {
      "id": "all_dat",
      "mode": "numeric_tolerance",
      "fileGlobs": ["*.dat"]
    }
  ]
}`

func TestResolve(t *testing.T) {
	p, err := Parse([]byte(samplePolicy), false)
	require.NoError(t, err)

	tests := []struct {
		path     string
		mode     Mode
		category string
	}{
		{"wscrn.dat", ModeNumeric, "crpa_screen_numeric"},
		{"nested/deep/wscrn.dat", ModeNumeric, "crpa_screen_numeric"},
		{"log2.dat", ModeWhitespaceText, "logs"},
		{"logs/run.dat", ModeWhitespaceText, "logs"},
		{"logs/a/run.dat", ModeExactText, ""},
		{"xmu.dat", ModeNumeric, "all_dat"},
		{"pot.bin", ModeExactText, ""},
		{"log10.dat", ModeNumeric, "all_dat"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := p.Resolve(tt.path)
			assert.Equal(t, tt.mode, res.Mode)
			if tt.category == "" {
				assert.Nil(t, res.MatchedCategory)
				assert.Equal(t, Tolerance{}, res.Tolerance)
			} else {
				require.NotNil(t, res.MatchedCategory)
				assert.Equal(t, tt.category, *res.MatchedCategory)
			}
		})
	}

	res := p.Resolve("wscrn.dat")
	assert.Equal(t, Tolerance{AbsTol: 1e-8, RelTol: 1e-6, RelativeFloor: 1e-12}, res.Tolerance)
	assert.Equal(t, []string{"#"}, p.CommentPrefixes())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		placeholder string
	}{
		{"malformed", `{"defaultMode":`, "INPUT.POLICY_PARSE"},
		{"bad default", `{"defaultMode":"fuzzy"}`, "INPUT.POLICY_MODE"},
		{"bad category mode", `{"defaultMode":"exact_text","categories":[{"id":"x","mode":"nope","fileGlobs":["*"]}]}`, "INPUT.POLICY_MODE"},
		{"missing id", `{"defaultMode":"exact_text","categories":[{"mode":"exact_text","fileGlobs":["*"]}]}`, "INPUT.POLICY_CATEGORY"},
		{"bad glob", `{"defaultMode":"exact_text","categories":[{"id":"x","mode":"exact_text","fileGlobs":["[a"]}]}`, "INPUT.POLICY_GLOB"},
		{"negative tolerance", `{"defaultMode":"exact_text","categories":[{"id":"x","mode":"numeric_tolerance","fileGlobs":["*"],"tolerance":{"absTol":-1}}]}`, "INPUT.POLICY_TOLERANCE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), false)
			require.Error(t, err)
			assert.True(t, core.HasPlaceholder(err, tt.placeholder), "got %v", err)
		})
	}
}

func TestLoadYAMLAndMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`defaultMode: whitespace_insensitive_text
categories:
  - id: bins
    mode: exact_text
    fileGlobs: ["**/*.bin"]
`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeWhitespaceText, p.DefaultMode)
	assert.Equal(t, ModeExactText, p.Resolve("a/pot.bin").Mode)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, core.HasPlaceholder(err, "IO.POLICY_READ"))
}
