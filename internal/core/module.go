package core

import (
	"fmt"
	"strings"
)

// Module is one of the sixteen compute-unit tags.
type Module int

// Compute modules.
const (
	ModuleRDINP Module = iota + 1
	ModulePOT
	ModuleXSPH
	ModulePATH
	ModuleFMS
	ModuleBAND
	ModuleLDOS
	ModuleRIXS
	ModuleCRPA
	ModuleCOMPTON
	ModuleDEBYE
	ModuleDMDW
	ModuleSCREEN
	ModuleSELF
	ModuleEELS
	ModuleFULLSPECTRUM
)

type moduleInfo struct {
	tag     string
	display string
	command string
	input   string
}

var moduleTable = map[Module]moduleInfo{
	ModuleRDINP:        {"RDINP", "RDINP", "rdinp", "feff.inp"},
	ModulePOT:          {"POT", "POT", "pot", "pot.inp"},
	ModuleXSPH:         {"XSPH", "XSPH", "xsph", "xsph.inp"},
	ModulePATH:         {"PATH", "PATH", "path", "paths.inp"},
	ModuleFMS:          {"FMS", "FMS", "fms", "fms.inp"},
	ModuleBAND:         {"BAND", "BAND", "band", "band.inp"},
	ModuleLDOS:         {"LDOS", "LDOS", "ldos", "ldos.inp"},
	ModuleRIXS:         {"RIXS", "RIXS", "rixs", "rixs.inp"},
	ModuleCRPA:         {"CRPA", "CRPA", "crpa", "crpa.inp"},
	ModuleCOMPTON:      {"COMPTON", "COMPTON", "compton", "compton.inp"},
	ModuleDEBYE:        {"DEBYE", "DEBYE", "ff2x", "ff2x.inp"},
	ModuleDMDW:         {"DMDW", "DMDW", "dmdw", "dmdw.inp"},
	ModuleSCREEN:       {"SCREEN", "SCREEN", "screen", "pot.inp"},
	ModuleSELF:         {"SELF", "SelfEnergy", "sfconv", "sfconv.inp"},
	ModuleEELS:         {"EELS", "EELS", "eels", "eels.inp"},
	ModuleFULLSPECTRUM: {"FULLSPECTRUM", "FullSpectrum", "fullspectrum", "fullspectrum.inp"},
}

// SerialChain is the fixed order in which enabled modules execute within a
// fixture.
var SerialChain = []Module{
	ModuleRDINP,
	ModulePOT,
	ModuleSCREEN,
	ModuleSELF,
	ModuleEELS,
	ModuleXSPH,
	ModuleBAND,
	ModuleLDOS,
	ModuleRIXS,
	ModuleCRPA,
	ModulePATH,
	ModuleDEBYE,
	ModuleDMDW,
	ModuleFMS,
	ModuleCOMPTON,
	ModuleFULLSPECTRUM,
}

// AllModules returns every module in declaration order.
func AllModules() []Module {
	out := make([]Module, 0, len(moduleTable))
	for m := ModuleRDINP; m <= ModuleFULLSPECTRUM; m++ {
		out = append(out, m)
	}
	return out
}

// Valid reports whether m is a known module.
func (m Module) Valid() bool {
	_, ok := moduleTable[m]
	return ok
}

// Tag returns the uppercase module tag, e.g. "POT".
func (m Module) Tag() string {
	if info, ok := moduleTable[m]; ok {
		return info.tag
	}
	return fmt.Sprintf("MODULE(%d)", int(m))
}

func (m Module) String() string { return m.Tag() }

// DisplayName returns the canonical display name ("SelfEnergy" for SELF).
func (m Module) DisplayName() string {
	return moduleTable[m].display
}

// Command returns the CLI subcommand that runs the module in place.
func (m Module) Command() string {
	return moduleTable[m].command
}

// CanonicalInput returns the file name the module expects as input_path.
func (m Module) CanonicalInput() string {
	return moduleTable[m].input
}

// DefaultFixtureID is used by module commands outside a workspace.
func (m Module) DefaultFixtureID() string {
	return "FX-" + m.Tag() + "-001"
}

// ParseModule resolves a tag, display name or command name case-insensitively.
func ParseModule(s string) (Module, error) {
	needle := strings.TrimSpace(s)
	for _, m := range AllModules() {
		info := moduleTable[m]
		if strings.EqualFold(needle, info.tag) ||
			strings.EqualFold(needle, info.display) ||
			strings.EqualFold(needle, info.command) {
			return m, nil
		}
	}
	return 0, InputError("INPUT.UNKNOWN_MODULE", "unknown module %q", s)
}

// ModuleForCommand returns the module run by the given subcommand name.
func ModuleForCommand(command string) (Module, bool) {
	for _, m := range AllModules() {
		if moduleTable[m].command == command {
			return m, true
		}
	}
	return 0, false
}
