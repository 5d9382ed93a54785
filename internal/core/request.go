package core

import "path/filepath"

// ComputeRequest routes one module execution. It is immutable per call.
type ComputeRequest struct {
	FixtureID string
	Module    Module
	InputPath string
	OutputDir string
}

// NewComputeRequest builds a request for module m.
func NewComputeRequest(fixtureID string, m Module, inputPath, outputDir string) ComputeRequest {
	return ComputeRequest{
		FixtureID: fixtureID,
		Module:    m,
		InputPath: inputPath,
		OutputDir: outputDir,
	}
}

// InputDir is the directory hosting the canonical input and its siblings.
func (r ComputeRequest) InputDir() string {
	return filepath.Dir(r.InputPath)
}

// Artifact describes one produced file relative to the output directory.
type Artifact struct {
	RelativePath string
}
