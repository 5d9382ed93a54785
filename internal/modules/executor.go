// Package modules implements the sixteen deterministic compute stand-ins and
// the dispatcher that routes compute requests to them.
//
// Every executor is a pure function of the bytes of its declared inputs: it
// reads no clock, environment or random source, and writing the same inputs
// twice yields byte-identical outputs.
package modules

import (
	"github.com/leapstack-labs/feffcheck/internal/core"
)

// Contract declares the files a module consumes and produces.
type Contract struct {
	RequiredInputs  []string
	OptionalInputs  []string
	ExpectedOutputs []string
	OptionalOutputs []string
}

// Outputs returns expected outputs plus the optional outputs listed in
// triggered, in declaration order.
func (c Contract) Outputs(triggered map[string]bool) []string {
	out := append([]string(nil), c.ExpectedOutputs...)
	for _, name := range c.OptionalOutputs {
		if triggered[name] {
			out = append(out, name)
		}
	}
	return out
}

// Executor is implemented by each module stand-in.
type Executor interface {
	Module() core.Module
	Contract(req core.ComputeRequest) (Contract, error)
	Execute(req core.ComputeRequest) ([]core.Artifact, error)
}

// computeFunc synthesizes outputs from loaded inputs.
type computeFunc func(req core.ComputeRequest, in *inputSet) (*outputSet, error)

// contractFunc derives the contract; it may inspect inputs on disk.
type contractFunc func(req core.ComputeRequest) (Contract, error)

// stage is the common Executor implementation: validate the request, load
// the contract inputs, compute, and write outputs.
type stage struct {
	module   core.Module
	contract contractFunc
	compute  computeFunc
}

func (s *stage) Module() core.Module { return s.module }

func (s *stage) Contract(req core.ComputeRequest) (Contract, error) {
	if err := validateRequest(s.module, req); err != nil {
		return Contract{}, err
	}
	return s.contract(req)
}

func (s *stage) Execute(req core.ComputeRequest) ([]core.Artifact, error) {
	c, err := s.Contract(req)
	if err != nil {
		return nil, err
	}
	in, err := loadInputs(s.module, req, c)
	if err != nil {
		return nil, err
	}
	out, err := s.compute(req, in)
	if err != nil {
		return nil, err
	}
	return emit(s.module, req, c, out)
}

// staticContract returns a contractFunc with fixed file lists.
func staticContract(c Contract) contractFunc {
	return func(core.ComputeRequest) (Contract, error) {
		return c, nil
	}
}
