package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTree writes files (slash-separated relative path to content) under root.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
}

// WriteJSON encodes v into path.
func WriteJSON(t testing.TB, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// ReadJSON decodes the JSON document at path into a generic map.
func ReadJSON(t testing.TB, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// Workspace lays out the conventional manifest and policy locations under
// root and returns root.
func Workspace(t testing.TB, root string, manifest, policy any) string {
	t.Helper()
	WriteJSON(t, filepath.Join(root, "tasks", "golden-fixture-manifest.json"), manifest)
	WriteJSON(t, filepath.Join(root, "tasks", "numeric-tolerance-policy.json"), policy)
	return root
}

// CopperDeck is a small fcc copper feff.inp used by module and CLI tests.
const CopperDeck = `TITLE Cu metal fcc
* a comment line
EDGE K
S02 0.9
SCF 4.0 0 30 0.1
XANES 4.0
RPATH 4.0
DEBYE 300 315
LDOS -20 20 0.1
CRPA 2.0
POTENTIALS
  0 29 Cu
  1 29 Cu
ATOMS
  0.0000  0.0000  0.0000 0
  1.8050  1.8050  0.0000 1
 -1.8050  1.8050  0.0000 1
  1.8050 -1.8050  0.0000 1
  0.0000  1.8050  1.8050 1
  0.0000  0.0000  3.6100 1   ! second shell
END
`
