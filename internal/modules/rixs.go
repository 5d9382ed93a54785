package modules

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleRIXS,
		contract: staticContract(Contract{
			RequiredInputs: []string{
				"rixs.inp", "phase_1.bin", "phase_2.bin", "wscrn_1.dat", "wscrn_2.dat", "xsect_2.dat",
			},
			ExpectedOutputs: []string{
				"rixs0.dat", "rixs1.dat", "rixsET.dat", "rixsEE.dat", "rixsET-sat.dat", "rixsEE-sat.dat", "logrixs.dat",
			},
		}),
		compute: computeRIXS,
	})
}

const rixsGrid = 21

type rixsInput struct {
	run    int
	gamCh  float64
	gamExp [2]float64
	window [4]float64
	edges  int
}

func parseRIXSInput(text string) (*rixsInput, error) {
	doc := numeric.NewDocument(text)
	run, err := doc.IntsAfter("m_run", 1)
	if err != nil {
		return nil, err
	}
	gam, err := doc.ValuesAfter("gam_ch", 1)
	if err != nil {
		return nil, err
	}
	window, err := doc.ValuesAfter("EMinI", 4)
	if err != nil {
		return nil, err
	}
	edges, err := doc.IntsAfter("nEdges", 1)
	if err != nil {
		return nil, err
	}
	r := &rixsInput{run: run[0], gamCh: gam[0], edges: edges[0]}
	copy(r.gamExp[:], gam[1:])
	copy(r.window[:], window)
	if r.edges < 1 {
		return nil, fmt.Errorf("nEdges must be positive, got %d", r.edges)
	}
	return r, nil
}

// rixsEdge summarizes one absorption edge from its phase table and
// screened interaction.
type rixsEdge struct {
	phase     *PhaseBin
	screening float64
}

func (e rixsEdge) amplitude(energy float64) float64 {
	p := e.phase
	return p.PhaseScale * (1 + 0.5*math.Cos(p.BasePhase+energy*0.1)) * math.Exp(-p.Damping*math.Abs(energy))
}

func axis(lo, hi float64) []float64 {
	if lo >= hi {
		lo, hi = -10, 20
	}
	return grid(lo, (hi-lo)/float64(rixsGrid-1), rixsGrid)
}

func computeRIXS(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleRIXS
	r, err := parseRIXSInput(in.text("rixs.inp"))
	if err != nil {
		return nil, parseError(m, req, "rixs.inp", err)
	}
	var edges [2]rixsEdge
	for i := range edges {
		name := fmt.Sprintf("phase_%d.bin", i+1)
		phase, err := decodePhaseBin(in.bytes(name))
		if err != nil {
			return nil, parseError(m, req, name, err)
		}
		edges[i] = rixsEdge{phase: phase, screening: screeningShift(in.text(fmt.Sprintf("wscrn_%d.dat", i+1)))}
	}
	xsRows := numeric.NewDocument(in.text("xsect_2.dat")).NumericRows(2)
	if len(xsRows) == 0 {
		return nil, parseError(m, req, "xsect_2.dat", fmt.Errorf("no cross-section rows"))
	}
	xsMean := 0.0
	for _, row := range xsRows {
		xsMean += math.Abs(row[1])
	}
	xsMean /= float64(len(xsRows))

	gam := r.gamCh
	if gam <= 0 {
		gam = 0.5
	}
	incident := axis(r.window[0], r.window[1])
	emitted := axis(r.window[2], r.window[3])
	seed := seedSource{sum: in.checksum()}
	satWeight := seed.between(0, 0.05, 0.25)

	intensity := func(ei, ef float64, sat bool) float64 {
		total := 0.0
		for i, e := range edges {
			shift := e.screening + float64(i)*seed.between(uint(i+1), 1, 5)
			if sat {
				shift += 2 * gam
			}
			total += e.amplitude(ei) * lorentz(ei-ef-shift, 0, gam+r.gamExp[i])
		}
		if sat {
			total *= satWeight
		}
		return total * (1 + xsMean)
	}

	out := newOutputSet()
	for i, e := range edges {
		var d textDoc
		d.comment("RIXS edge %d absorption for fixture %s", i+1, req.FixtureID)
		d.comment("incident_energy  intensity  phase")
		for _, ei := range incident {
			d.sciRow(ei, e.amplitude(ei)*(1+xsMean), e.phase.BasePhase+ei*0.1)
		}
		out.addText(fmt.Sprintf("rixs%d.dat", i), d.String())
	}

	maps := []struct {
		name     string
		transfer bool
		sat      bool
	}{
		{"rixsET.dat", true, false},
		{"rixsEE.dat", false, false},
		{"rixsET-sat.dat", true, true},
		{"rixsEE-sat.dat", false, true},
	}
	for _, mp := range maps {
		var d textDoc
		d.comment("RIXS map %s for fixture %s", mp.name, req.FixtureID)
		if mp.transfer {
			d.comment("incident_energy  energy_transfer  intensity")
		} else {
			d.comment("incident_energy  emission_energy  intensity")
		}
		for _, ei := range incident {
			for _, ef := range emitted {
				second := ef
				if mp.transfer {
					second = ei - ef
				}
				d.sciRow(ei, second, intensity(ei, ef, mp.sat))
			}
		}
		out.addText(mp.name, d.String())
	}

	log := newLog("RIXS: resonant inelastic x-ray scattering", req.FixtureID, in)
	log.kv("m_run", r.run)
	log.kv("edges", r.edges)
	log.kv("core-hole width", gam)
	log.kv("satellite weight", satWeight)
	log.kv("incident window", fmt.Sprintf("%s..%s", artifact.FormatFixed(incident[0], 0, 3), artifact.FormatFixed(incident[rixsGrid-1], 0, 3)))
	for i, e := range edges {
		log.kv(fmt.Sprintf("phase_%d.bin", i+1), binaryKind(e.phase.Legacy, "phase"))
	}
	out.addText("logrixs.dat", log.String())
	return out, nil
}
