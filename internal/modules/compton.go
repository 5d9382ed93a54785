package modules

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleCOMPTON,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"compton.inp", "pot.bin", "gg_slice.bin"},
			ExpectedOutputs: []string{"compton.dat", "jzzp.dat", "rhozzp.dat", "logcompton.dat"},
		}),
		compute: computeCOMPTON,
	})
}

type comptonInput struct {
	run         bool
	pqmax       float64
	npq         int
	temperature float64
}

func parseComptonInput(text string) (*comptonInput, error) {
	doc := numeric.NewDocument(text)
	run, err := doc.BoolAfter("run compton module?")
	if err != nil {
		return nil, err
	}
	pq, err := doc.ValuesAfter("pqmax, npq", 2)
	if err != nil {
		return nil, err
	}
	npq, err := numeric.ToInt(pq[1])
	if err != nil {
		return nil, fmt.Errorf("npq: %w", err)
	}
	c := &comptonInput{run: run, pqmax: pq[0], npq: npq}
	if v, err := doc.ValuesAfter("temperature", 1); err == nil {
		c.temperature = v[0]
	}
	if c.pqmax <= 0 {
		return nil, fmt.Errorf("pqmax must be positive, got %g", c.pqmax)
	}
	return c, nil
}

func computeCOMPTON(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleCOMPTON
	c, err := parseComptonInput(in.text("compton.inp"))
	if err != nil {
		return nil, parseError(m, req, "compton.inp", err)
	}
	pot, err := decodePotBin(in.bytes("pot.bin"))
	if err != nil {
		return nil, parseError(m, req, "pot.bin", err)
	}
	gg, err := decodeGGBin(in.bytes("gg_slice.bin"))
	if err != nil {
		return nil, parseError(m, req, "gg_slice.bin", err)
	}

	// Momentum width follows the absorber's muffin-tin depth.
	width := 1.0
	if len(pot.Potentials) > 0 {
		width = 0.5 + math.Sqrt(math.Abs(pot.Potentials[0].Vmt0))/4
	}
	traceWeight := 0.0
	for _, t := range gg.Trace {
		traceWeight += cmplx.Abs(t)
	}
	if len(gg.Trace) > 0 {
		traceWeight /= float64(len(gg.Trace))
	}
	thermal := 1 + c.temperature/10

	npts := clampInt(c.npq/10+1, 11, 201)
	step := c.pqmax / float64(npts-1)
	profile := func(q float64) float64 {
		return (1 + 0.1*traceWeight) / (1 + (q*q)/(width*width*thermal))
	}

	var cd textDoc
	cd.comment("Compton profile for fixture %s", req.FixtureID)
	cd.comment("q  J(q)  J_core(q)")
	total := 0.0
	for i := 0; i < npts; i++ {
		q := step * float64(i)
		j := profile(q)
		total += j * step
		cd.sciRow(q, j, j*math.Exp(-q/width))
	}

	const nz = 11
	zmax := c.pqmax / 2
	var jz, rz textDoc
	jz.comment("J(z, z') for fixture %s", req.FixtureID)
	jz.comment("z  zp  J")
	rz.comment("rho(z, z') for fixture %s", req.FixtureID)
	rz.comment("z  zp  rho")
	for i := 0; i < nz; i++ {
		z := -zmax + 2*zmax*float64(i)/float64(nz-1)
		for k := 0; k < nz; k++ {
			zp := -zmax + 2*zmax*float64(k)/float64(nz-1)
			jz.sciRow(z, zp, profile(z)*profile(zp))
			rz.sciRow(z, zp, math.Exp(-(z-zp)*(z-zp)/(2*width*width))*profile((z+zp)/2))
		}
	}

	log := newLog("COMPTON: Compton profile", req.FixtureID, in)
	log.kv("run compton", fortranBool(c.run))
	log.kv("pqmax", c.pqmax)
	log.kv("points", npts)
	log.kv("temperature", c.temperature)
	log.kv("profile integral", total)
	log.kv("pot.bin", binaryKind(pot.Legacy, "pot"))
	log.kv("gg_slice.bin", binaryKind(gg.Legacy, "gg"))

	out := newOutputSet()
	out.addText("compton.dat", cd.String())
	out.addText("jzzp.dat", jz.String())
	out.addText("rhozzp.dat", rz.String())
	out.addText("logcompton.dat", log.String())
	return out, nil
}
