package modules

import (
	"fmt"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleCRPA,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"crpa.inp", "pot.inp", "geom.dat"},
			ExpectedOutputs: []string{"wscrn.dat", "logscrn.dat"},
		}),
		compute: computeCRPA,
	})
}

type crpaInput struct {
	run  bool
	rcut float64
	l    int
}

func parseCRPAInput(text string) (*crpaInput, error) {
	doc := numeric.NewDocument(text)
	c := &crpaInput{rcut: 1.5, l: 3}
	run, ok := doc.KeywordValues("do_CRPA")
	if !ok || len(run) == 0 {
		return nil, fmt.Errorf("do_CRPA flag not found")
	}
	c.run = run[0] > 0.5
	if v, ok := doc.KeywordValues("rcut"); ok && len(v) > 0 && v[0] > 0 {
		c.rcut = v[0]
	}
	if v, ok := doc.KeywordValues("l_crpa"); ok && len(v) > 0 {
		l, err := numeric.ToInt(v[0])
		if err != nil {
			return nil, fmt.Errorf("l_crpa: %w", err)
		}
		c.l = l
	}
	return c, nil
}

func computeCRPA(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleCRPA
	c, err := parseCRPAInput(in.text("crpa.inp"))
	if err != nil {
		return nil, parseError(m, req, "crpa.inp", err)
	}
	pot, err := parsePotInput(in.text("pot.inp"))
	if err != nil {
		return nil, parseError(m, req, "pot.inp", err)
	}
	geom, err := parseGeometry(in.text("geom.dat"))
	if err != nil {
		return nil, parseError(m, req, "geom.dat", err)
	}

	seed := seedSource{sum: in.checksum()}
	absZ := 1
	if len(pot.entries) > 0 {
		absZ = pot.entries[0].z
	}
	cluster := clusterAtoms(geom, c.rcut*2)
	w := screenedInteraction{
		rmax:     c.rcut,
		points:   clampInt(40*(c.l+1), 40, 200),
		charge:   1 + float64(absZ)/40,
		lambda:   c.rcut / (1 + 0.1*float64(len(cluster))),
		damping:  seed.between(0, 0.01, 0.1),
		lchannel: c.l,
	}
	if !c.run {
		w.damping = 0
	}

	log := newLog("CRPA: constrained RPA screened interaction", req.FixtureID, in)
	log.kv("do_CRPA", fortranBool(c.run))
	log.kv("rcut", c.rcut)
	log.kv("l_crpa", c.l)
	log.kv("absorber Z", absZ)
	log.kv("cluster atoms", len(cluster))
	log.kv("screening length", w.lambda)

	out := newOutputSet()
	out.addText("wscrn.dat", w.render(fmt.Sprintf("CRPA screened interaction for fixture %s", req.FixtureID)))
	out.addText("logscrn.dat", log.String())
	return out, nil
}
