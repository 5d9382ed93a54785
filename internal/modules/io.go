package modules

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
)

func placeholder(m core.Module, kind string) string {
	prefix := map[string]string{
		"MODULE":           "INPUT",
		"INPUT_ARTIFACT":   "INPUT",
		"INPUT_READ":       "IO",
		"OUTPUT_DIRECTORY": "IO",
		"OUTPUT_WRITE":     "IO",
		"INPUT_PARSE":      "RUN",
		"OUTPUT_CONTRACT":  "SYS",
	}[kind]
	return prefix + "." + m.Tag() + "_" + kind
}

func validateRequest(m core.Module, req core.ComputeRequest) error {
	if req.Module != m {
		return core.InputError(placeholder(m, "MODULE"),
			"%s executor received a request for module %s", m, req.Module)
	}
	name := filepath.Base(req.InputPath)
	if !strings.EqualFold(name, m.CanonicalInput()) {
		return core.InputError(placeholder(m, "INPUT_ARTIFACT"),
			"%s expects input artifact '%s' but got '%s'", m, m.CanonicalInput(), name)
	}
	if !artifact.DirExists(req.InputDir()) {
		return core.InputError(placeholder(m, "INPUT_ARTIFACT"),
			"input directory '%s' for fixture '%s' does not exist", req.InputDir(), req.FixtureID)
	}
	return nil
}

// inputSet holds the bytes of every loaded input, keyed by file name.
type inputSet struct {
	module  core.Module
	dir     string
	order   []string
	files   map[string][]byte
	missing []string
}

func (in *inputSet) has(name string) bool {
	_, ok := in.files[name]
	return ok
}

func (in *inputSet) bytes(name string) []byte {
	return in.files[name]
}

func (in *inputSet) text(name string) string {
	return string(in.files[name])
}

// checksum hashes every loaded input in contract order.
func (in *inputSet) checksum() uint64 {
	parts := make([][]byte, 0, len(in.order))
	for _, name := range in.order {
		parts = append(parts, []byte(name), in.files[name])
	}
	return artifact.Checksum(parts...)
}

func readInput(m core.Module, req core.ComputeRequest, name string) ([]byte, error) {
	path := filepath.Join(req.InputDir(), name)
	if strings.EqualFold(name, filepath.Base(req.InputPath)) {
		path = req.InputPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.IOError(placeholder(m, "INPUT_READ"),
				"fixture '%s' is missing required %s input '%s' at '%s'", req.FixtureID, m, name, path)
		}
		return nil, core.IOError(placeholder(m, "INPUT_READ"),
			"failed to read %s input '%s' at '%s': %v", m, name, path, err)
	}
	return data, nil
}

func readOptional(m core.Module, req core.ComputeRequest, name string) ([]byte, bool, error) {
	path := filepath.Join(req.InputDir(), name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, core.IOError(placeholder(m, "INPUT_READ"),
			"failed to read optional %s input '%s' at '%s': %v", m, name, path, err)
	}
	return data, true, nil
}

func loadInputs(m core.Module, req core.ComputeRequest, c Contract) (*inputSet, error) {
	in := &inputSet{module: m, dir: req.InputDir(), files: make(map[string][]byte)}
	for _, name := range c.RequiredInputs {
		data, err := readInput(m, req, name)
		if err != nil {
			return nil, err
		}
		in.files[name] = data
		in.order = append(in.order, name)
	}
	for _, name := range c.OptionalInputs {
		data, ok, err := readOptional(m, req, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			in.missing = append(in.missing, name)
			continue
		}
		in.files[name] = data
		in.order = append(in.order, name)
	}
	return in, nil
}

// outputSet collects rendered outputs in write order.
type outputSet struct {
	names []string
	data  map[string][]byte
}

func newOutputSet() *outputSet {
	return &outputSet{data: make(map[string][]byte)}
}

func (o *outputSet) add(name string, data []byte) {
	if _, ok := o.data[name]; !ok {
		o.names = append(o.names, name)
	}
	o.data[name] = data
}

func (o *outputSet) addText(name, text string) {
	o.add(name, []byte(text))
}

func emit(m core.Module, req core.ComputeRequest, c Contract, out *outputSet) ([]core.Artifact, error) {
	allowed := make(map[string]bool, len(c.ExpectedOutputs)+len(c.OptionalOutputs))
	for _, n := range c.ExpectedOutputs {
		allowed[n] = true
	}
	for _, n := range c.OptionalOutputs {
		allowed[n] = true
	}
	for _, n := range out.names {
		if !allowed[n] {
			return nil, core.InternalError(placeholder(m, "OUTPUT_CONTRACT"),
				"%s produced undeclared artifact '%s'", m, n)
		}
	}
	for _, n := range c.ExpectedOutputs {
		if _, ok := out.data[n]; !ok {
			return nil, core.InternalError(placeholder(m, "OUTPUT_CONTRACT"),
				"%s did not produce expected artifact '%s'", m, n)
		}
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, core.IOError(placeholder(m, "OUTPUT_DIRECTORY"),
			"failed to create output directory '%s': %v", req.OutputDir, err)
	}

	artifacts := make([]core.Artifact, 0, len(out.names))
	for _, n := range out.names {
		if err := artifact.WriteAtomic(filepath.Join(req.OutputDir, n), out.data[n]); err != nil {
			return nil, core.IOError(placeholder(m, "OUTPUT_WRITE"),
				"failed to write %s artifact '%s': %v", m, n, err)
		}
		artifacts = append(artifacts, core.Artifact{RelativePath: n})
	}
	return artifacts, nil
}

func parseError(m core.Module, req core.ComputeRequest, name string, err error) error {
	return core.ComputeError(placeholder(m, "INPUT_PARSE"),
		"fixture '%s': failed to parse %s input '%s': %v", req.FixtureID, m, name, err)
}
