package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

// legacyFlagAliases maps flag spellings kept for older scripts onto the
// registered names.
var legacyFlagAliases = map[string]string{
	"oracle-root":   "baseline-root",
	"oracle-subdir": "baseline-subdir",
}

// normalizeRunFlags accepts --run-<module>-placeholder and the oracle-*
// root spellings.
func normalizeRunFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if strings.HasPrefix(name, "run-") {
		name = strings.TrimSuffix(name, "-placeholder")
	}
	if alias, ok := legacyFlagAliases[name]; ok {
		name = alias
	}
	return pflag.NormalizedName(name)
}

// hookFlagName is the flag enabling the pre-compare hook for m.
func hookFlagName(m core.Module) string {
	return "run-" + strings.ToLower(m.Tag())
}

// hookFlags holds one boolean per module.
type hookFlags map[core.Module]*bool

func addHookFlags(flags *pflag.FlagSet) hookFlags {
	hooks := make(hookFlags)
	for _, m := range core.AllModules() {
		hooks[m] = flags.Bool(hookFlagName(m), false,
			fmt.Sprintf("Execute %s into the actual tree before comparing", m.DisplayName()))
	}
	return hooks
}

// enabled returns the modules whose hook flag was set, in declaration order.
func (h hookFlags) enabled() []core.Module {
	var out []core.Module
	for _, m := range core.AllModules() {
		if on := h[m]; on != nil && *on {
			out = append(out, m)
		}
	}
	return out
}

// runFlags registers the location flags shared by regression and oracle.
// Values are read back through the config loader.
func runFlags(flags *pflag.FlagSet, baselineHelp string) {
	flags.String("manifest", "", "Golden fixture manifest (JSON or YAML)")
	flags.String("policy", "", "Numeric tolerance policy (JSON or YAML)")
	flags.String("baseline-root", "", baselineHelp)
	flags.String("baseline-subdir", "", "Per-fixture subdirectory of the baseline root")
	flags.String("actual-root", "", "Root of the actual trees; hooks write here")
	flags.String("actual-subdir", "", "Per-fixture subdirectory of the actual root")
	flags.String("report", "", "Path of the JSON report")
	flags.String("history-db", "", "Record the run in this SQLite history ledger")
	flags.SetNormalizeFunc(normalizeRunFlags)
}
