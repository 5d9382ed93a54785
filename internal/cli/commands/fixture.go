package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/modules"
	"github.com/leapstack-labs/feffcheck/internal/regression"
)

// fixtureContext is the workspace view used to choose which fixture a
// command executes under.
type fixtureContext struct {
	cwd      string
	root     string
	manifest *regression.Manifest
}

func loadFixtureContext(cwd, root string) (*fixtureContext, error) {
	manifest, err := regression.LoadManifest(filepath.Join(root, filepath.FromSlash(regression.DefaultManifestPath)))
	if err != nil {
		return nil, err
	}
	return &fixtureContext{cwd: cwd, root: root, manifest: manifest}, nil
}

func (fc *fixtureContext) covering(m core.Module) []regression.Fixture {
	var out []regression.Fixture
	for _, f := range fc.manifest.Fixtures {
		if f.Covers(m) {
			out = append(out, f)
		}
	}
	return out
}

// byInputDirectory returns the unique candidate whose input directory is the
// working directory.
func (fc *fixtureContext) byInputDirectory(candidates []regression.Fixture) (regression.Fixture, bool) {
	var matches []regression.Fixture
	for _, f := range candidates {
		if f.InputDirectory == "" {
			continue
		}
		dir := filepath.FromSlash(f.InputDirectory)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(fc.root, dir)
		}
		if samePath(dir, fc.cwd) {
			matches = append(matches, f)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return regression.Fixture{}, false
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}

// singleByType returns the only candidate of the requested kind.
func singleByType(candidates []regression.Fixture, workflow bool) (regression.Fixture, bool) {
	var found []regression.Fixture
	for _, f := range candidates {
		if f.IsWorkflow() == workflow {
			found = append(found, f)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return regression.Fixture{}, false
}

func lowestID(candidates []regression.Fixture) regression.Fixture {
	sorted := append([]regression.Fixture(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted[0]
}

// narrow picks one fixture: input directory match, then the single
// module-scoped fixture, then the lowest id.
func (fc *fixtureContext) narrow(candidates []regression.Fixture) regression.Fixture {
	if f, ok := fc.byInputDirectory(candidates); ok {
		return f
	}
	if f, ok := singleByType(candidates, false); ok {
		return f
	}
	return lowestID(candidates)
}

// selectForModule chooses the fixture a module command runs under. RDINP is
// chosen from the manifest alone; other modules keep only the candidates
// whose probe execution succeeds.
func (fc *fixtureContext) selectForModule(m core.Module) (string, error) {
	candidates := fc.covering(m)
	if len(candidates) == 0 {
		return "", core.InputError("INPUT.CLI_FIXTURE_LOOKUP",
			"no fixtures in '%s' cover module %s", regression.DefaultManifestPath, m)
	}
	if m == core.ModuleRDINP {
		return fc.narrow(candidates).ID, nil
	}

	var passing []regression.Fixture
	var failures []string
	for _, f := range candidates {
		if err := fc.probe(m, f.ID); err != nil {
			if core.HasPlaceholder(err, "IO.CLI_PROBE_DIR") {
				return "", err
			}
			failures = append(failures, fmt.Sprintf("%s => %v", f.ID, err))
			continue
		}
		passing = append(passing, f)
	}

	switch len(passing) {
	case 0:
		detail := "no candidate fixtures matched module input contracts"
		if len(failures) > 0 {
			detail = strings.Join(failures, "; ")
		}
		return "", core.InputError("INPUT.CLI_FIXTURE_LOOKUP",
			"unable to resolve fixture for module %s in '%s': %s", m, fc.cwd, detail)
	case 1:
		return passing[0].ID, nil
	}
	return fc.narrow(passing).ID, nil
}

// selectWorkflow chooses the workflow fixture the serial chain runs under.
func (fc *fixtureContext) selectWorkflow() (regression.Fixture, error) {
	var candidates []regression.Fixture
	for _, f := range fc.covering(core.ModuleRDINP) {
		if f.IsWorkflow() {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return regression.Fixture{}, core.InputError("INPUT.CLI_WORKFLOW_FIXTURE",
			"no workflow fixtures covering RDINP were found in the manifest")
	}
	if f, ok := fc.byInputDirectory(candidates); ok {
		return f, nil
	}
	return lowestID(candidates), nil
}

// probe executes m for fixtureID into a scratch directory that is removed
// afterwards. Inputs are read from the working directory.
func (fc *fixtureContext) probe(m core.Module, fixtureID string) error {
	dir, err := os.MkdirTemp("", fmt.Sprintf("feffcheck-probe-%s-%s-%d-", strings.ToLower(m.Tag()), fixtureID, os.Getpid()))
	if err != nil {
		return core.IOError("IO.CLI_PROBE_DIR", "failed to create module probe directory: %v", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	req := core.NewComputeRequest(fixtureID, m, filepath.Join(fc.cwd, m.CanonicalInput()), dir)
	_, err = modules.Execute(m, req)
	return err
}

// executeInPlace runs m with the working directory as input and output.
func executeInPlace(cwd string, m core.Module, fixtureID string) ([]core.Artifact, error) {
	req := core.NewComputeRequest(fixtureID, m, filepath.Join(cwd, m.CanonicalInput()), cwd)
	return modules.Execute(m, req)
}

func engineUnavailable(m core.Module) error {
	return core.ComputeError("RUN.RUNTIME_ENGINE_UNAVAILABLE",
		"compute engine for module %s is not available in this build", m)
}
