package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode int
	}{
		{"input", InputError("INPUT.CLI_USAGE", "bad flag"), 2},
		{"orchestration", OrchestrationError("RUN.ORACLE_CAPTURE", "failed"), 2},
		{"io", IOError("IO.COMPTON_INPUT_READ", "missing gg_slice.bin"), 3},
		{"computation", ComputeError("RUN.POT_INPUT_MISMATCH", "broken"), 4},
		{"internal", InternalError("SYS.CLI_UNCLASSIFIED", "boom"), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.ExitCode())
		})
	}
}

func TestErrorDiagnosticLines(t *testing.T) {
	err := ComputeError("RUN.POT_INPUT_MISMATCH", "fixture '%s' broke", "FX-POT-001")

	assert.Equal(t, "ERROR: [RUN.POT_INPUT_MISMATCH] fixture 'FX-POT-001' broke", err.DiagnosticLine())
	assert.Equal(t, "FATAL EXIT CODE: 4", err.FatalExitLine())
	assert.Equal(t, "WARNING: [RUN.MPI_DEFERRED] serial", WarningLine("RUN.MPI_DEFERRED", "serial"))
}

func TestAsErrorUnwraps(t *testing.T) {
	inner := IOError("IO.POT_INPUT_READ", "missing geom.dat")
	wrapped := fmt.Errorf("hook POT: %w", inner)

	got := AsError(wrapped, "SYS.FALLBACK")
	require.NotNil(t, got)
	assert.Equal(t, "IO.POT_INPUT_READ", got.Placeholder)
	assert.True(t, HasPlaceholder(wrapped, "IO.POT_INPUT_READ"))

	plain := AsError(errors.New("plain"), "SYS.FALLBACK")
	assert.Equal(t, "SYS.FALLBACK", plain.Placeholder)
	assert.Equal(t, ExitInternal, plain.ExitCode())

	assert.Nil(t, AsError(nil, "SYS.FALLBACK"))
}

func TestParseModule(t *testing.T) {
	tests := []struct {
		input string
		want  Module
	}{
		{"rdinp", ModuleRDINP},
		{"POT", ModulePOT},
		{"SelfEnergy", ModuleSELF},
		{"self", ModuleSELF},
		{"sfconv", ModuleSELF},
		{"ff2x", ModuleDEBYE},
		{" FullSpectrum ", ModuleFULLSPECTRUM},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseModule(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseModule("NOPE")
	assert.True(t, HasPlaceholder(err, "INPUT.UNKNOWN_MODULE"))
}

func TestModuleTable(t *testing.T) {
	assert.Len(t, AllModules(), 16)
	assert.Len(t, SerialChain, 16)

	seen := map[Module]bool{}
	for _, m := range SerialChain {
		assert.False(t, seen[m], "duplicate %s in serial chain", m)
		seen[m] = true
		assert.True(t, m.Valid())
		assert.NotEmpty(t, m.CanonicalInput())
	}

	assert.Equal(t, "pot.inp", ModuleSCREEN.CanonicalInput())
	assert.Equal(t, "ff2x.inp", ModuleDEBYE.CanonicalInput())
	assert.Equal(t, "FX-SELF-001", ModuleSELF.DefaultFixtureID())
	assert.Equal(t, ModuleRDINP, SerialChain[0])
	assert.Equal(t, ModuleFULLSPECTRUM, SerialChain[15])

	m, ok := ModuleForCommand("sfconv")
	assert.True(t, ok)
	assert.Equal(t, ModuleSELF, m)
}
