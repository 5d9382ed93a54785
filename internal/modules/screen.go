package modules

import (
	"fmt"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleSCREEN,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"pot.inp", "geom.dat", "ldos.inp"},
			OptionalInputs:  []string{"screen.inp"},
			ExpectedOutputs: []string{"wscrn.dat", "logscreen.dat"},
		}),
		compute: computeSCREEN,
	})
}

// screenSettings holds the screen.inp knobs with their defaults applied.
type screenSettings struct {
	ner   int
	nei   int
	maxl  int
	rfms  float64
	emin  float64
	eimax float64
}

func parseScreenSettings(text string) (screenSettings, error) {
	s := screenSettings{ner: 40, nei: 20, maxl: 4, rfms: 4, emin: -40, eimax: 2}
	if text == "" {
		return s, nil
	}
	doc := numeric.NewDocument(text)
	ints := []struct {
		key string
		dst *int
	}{{"ner", &s.ner}, {"nei", &s.nei}, {"maxl", &s.maxl}}
	for _, f := range ints {
		v, ok := doc.KeywordValues(f.key)
		if !ok || len(v) == 0 {
			continue
		}
		n, err := numeric.ToInt(v[0])
		if err != nil {
			return s, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = n
	}
	floats := []struct {
		key string
		dst *float64
	}{{"rfms", &s.rfms}, {"emin", &s.emin}, {"eimax", &s.eimax}}
	for _, f := range floats {
		if v, ok := doc.KeywordValues(f.key); ok && len(v) > 0 {
			*f.dst = v[0]
		}
	}
	return s, nil
}

func computeSCREEN(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleSCREEN
	pot, err := parsePotInput(in.text("pot.inp"))
	if err != nil {
		return nil, parseError(m, req, "pot.inp", err)
	}
	geom, err := parseGeometry(in.text("geom.dat"))
	if err != nil {
		return nil, parseError(m, req, "geom.dat", err)
	}
	ldos, err := parseLDOSInput(in.text("ldos.inp"))
	if err != nil {
		return nil, parseError(m, req, "ldos.inp", err)
	}
	settings, err := parseScreenSettings(in.text("screen.inp"))
	if err != nil {
		return nil, parseError(m, req, "screen.inp", err)
	}

	rmax := settings.rfms
	if rmax <= 0 {
		rmax = ldos.rfms2
	}
	if rmax <= 0 {
		rmax = 4
	}
	cluster := clusterAtoms(geom, rmax)
	seed := seedSource{sum: in.checksum()}
	w := screenedInteraction{
		rmax:     rmax,
		points:   clampInt(settings.ner*2, 20, 400),
		charge:   1 + float64(pot.entries[0].z)/40,
		lambda:   rmax / (2 + 0.1*float64(len(cluster))),
		damping:  seed.between(0, 0.01, 0.1) * float64(settings.nei) / 20,
		lchannel: settings.maxl,
	}

	log := newLog("SCREEN: core-hole screened interaction", req.FixtureID, in)
	log.kv("screen.inp", presence(in.has("screen.inp")))
	log.kv("ner", settings.ner)
	log.kv("nei", settings.nei)
	log.kv("maxl", settings.maxl)
	log.kv("rfms", rmax)
	log.kv("cluster atoms", len(cluster))
	log.kv("potentials", pot.nph()+1)
	log.kv("ldos potentials", ldos.nph()+1)

	out := newOutputSet()
	out.addText("wscrn.dat", w.render(fmt.Sprintf("SCREEN screened interaction for fixture %s", req.FixtureID)))
	out.addText("logscreen.dat", log.String())
	return out, nil
}
