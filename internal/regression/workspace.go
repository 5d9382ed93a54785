package regression

import (
	"path/filepath"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
)

// FindWorkspaceRoot walks from start towards the filesystem root and returns
// the first directory containing the fixture manifest.
func FindWorkspaceRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for {
		if artifact.Exists(filepath.Join(dir, filepath.FromSlash(DefaultManifestPath))) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
