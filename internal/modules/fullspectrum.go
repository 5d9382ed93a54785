package modules

import (
	"math"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleFULLSPECTRUM,
		contract: staticContract(Contract{
			RequiredInputs: []string{"fullspectrum.inp", "xmu.dat"},
			OptionalInputs: []string{"prexmu.dat", "referencexmu.dat"},
			ExpectedOutputs: []string{
				"xmu.dat", "osc_str.dat", "eps.dat", "drude.dat", "background.dat", "fine_st.dat", "logfullspectrum.dat",
			},
		}),
		compute: computeFULLSPECTRUM,
	})
}

func computeFULLSPECTRUM(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleFULLSPECTRUM
	mode, err := numeric.NewDocument(in.text("fullspectrum.inp")).IntsAfter("mFullSpectrum", 1)
	if err != nil {
		return nil, parseError(m, req, "fullspectrum.inp", err)
	}
	spectrum, err := readSpectrum(in.text("xmu.dat"))
	if err != nil {
		return nil, parseError(m, req, "xmu.dat", err)
	}
	var pre, ref []spectrumPoint
	if in.has("prexmu.dat") {
		if pre, err = readSpectrum(in.text("prexmu.dat")); err != nil {
			return nil, parseError(m, req, "prexmu.dat", err)
		}
	}
	if in.has("referencexmu.dat") {
		if ref, err = readSpectrum(in.text("referencexmu.dat")); err != nil {
			return nil, parseError(m, req, "referencexmu.dat", err)
		}
	}

	seed := seedSource{sum: in.checksum()}
	plasma := seed.between(0, 5, 20)
	damping := seed.between(1, 0.1, 1)
	edge := spectrum[0].energy

	background := func(i int, e float64) float64 {
		b := 0.05 * math.Exp(-math.Max(e-edge, 0)/100)
		if len(pre) > 0 {
			b += pre[i%len(pre)].mu
		}
		return b
	}

	var xd, osc, eps, drude, bg, fine textDoc
	xd.comment("full spectrum xmu for fixture %s (mode %d)", req.FixtureID, mode[0])
	xd.comment("energy  mu  mu0  chi")
	osc.comment("oscillator strengths for fixture %s", req.FixtureID)
	osc.comment("energy  f")
	eps.comment("dielectric function for fixture %s", req.FixtureID)
	eps.comment("energy  eps1  eps2")
	drude.comment("Drude term for fixture %s, plasma energy %s", req.FixtureID, formatShort(plasma))
	drude.comment("energy  eps1_drude  eps2_drude")
	bg.comment("background for fixture %s", req.FixtureID)
	bg.comment("energy  background")
	fine.comment("fine structure for fixture %s", req.FixtureID)
	fine.comment("energy  fine_structure")

	for i, p := range spectrum {
		e := p.energy
		w := math.Max(math.Abs(e-edge), 0.1)
		b := background(i, e)
		mu := p.mu + b
		mu0 := b + 1 - math.Exp(-math.Max(e-edge, 0)/50)
		if len(ref) > 0 {
			mu0 = (mu0 + ref[i%len(ref)].mu) / 2
		}
		chi := 0.0
		if mu0 != 0 {
			chi = (mu - mu0) / mu0
		}
		d := 1 - complex(plasma*plasma, 0)/complex(w*w, w*damping)
		xd.sciRow(e, mu, mu0, chi)
		osc.sciRow(e, mu*w/(2*math.Pi*math.Pi))
		eps.sciRow(e, real(d)+mu, imag(d)+mu*0.1)
		drude.sciRow(e, real(d), imag(d))
		bg.sciRow(e, b)
		fine.sciRow(e, mu-mu0)
	}

	log := newLog("FULLSPECTRUM: full spectrum assembly", req.FixtureID, in)
	log.kv("mFullSpectrum", mode[0])
	log.kv("points", len(spectrum))
	log.kv("plasma energy", plasma)
	log.kv("prexmu.dat", presence(in.has("prexmu.dat")))
	log.kv("referencexmu.dat", presence(in.has("referencexmu.dat")))

	out := newOutputSet()
	out.addText("xmu.dat", xd.String())
	out.addText("osc_str.dat", osc.String())
	out.addText("eps.dat", eps.String())
	out.addText("drude.dat", drude.String())
	out.addText("background.dat", bg.String())
	out.addText("fine_st.dat", fine.String())
	out.addText("logfullspectrum.dat", log.String())
	return out, nil
}
