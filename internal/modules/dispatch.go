package modules

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/feffcheck/internal/core"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[core.Module]Executor)
)

// Register adds an executor to the dispatch table.
// Called by module implementations in their init() functions.
func Register(e Executor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Module()] = e
}

// Get returns the executor for m.
func Get(m core.Module) (Executor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[m]
	return e, ok
}

// IsAvailable reports whether m can be executed in-process.
func IsAvailable(m core.Module) bool {
	_, ok := Get(m)
	return ok
}

// available returns every registered module in declaration order.
func available() []core.Module {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]core.Module, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func lookup(m core.Module, req core.ComputeRequest) (Executor, error) {
	if req.Module != m {
		return nil, core.InputError("INPUT.RUNTIME_MODULE_MISMATCH",
			"runtime dispatch for %s received a request for %s", m, req.Module)
	}
	e, ok := Get(m)
	if !ok {
		return nil, core.ComputeError("RUN.RUNTIME_ENGINE_UNAVAILABLE",
			"compute engine for module %s is not available in this build", m)
	}
	return e, nil
}

// Execute routes req to the executor registered for m.
func Execute(m core.Module, req core.ComputeRequest) ([]core.Artifact, error) {
	e, err := lookup(m, req)
	if err != nil {
		return nil, err
	}
	return e.Execute(req)
}

// ContractFor returns the contract of the executor registered for m.
func ContractFor(m core.Module, req core.ComputeRequest) (Contract, error) {
	e, err := lookup(m, req)
	if err != nil {
		return Contract{}, err
	}
	return e.Contract(req)
}
