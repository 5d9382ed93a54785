package modules

import (
	"math"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleXSPH,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"xsph.inp", "geom.dat", "global.inp", "pot.bin"},
			OptionalInputs:  []string{"wscrn.dat"},
			ExpectedOutputs: []string{"phase.bin", "xsect.dat", "log2.dat"},
		}),
		compute: computeXSPH,
	})
}

type xsphInput struct {
	mphase int
	ispec  int
	lfms2  int
	nph    int
	vr0    float64
	vi0    float64
	rgrd   float64
	rfms2  float64
	gamach float64
	xkstep float64
	xkmax  float64
	vixan  float64
}

func parseXSPHInput(text string) (*xsphInput, error) {
	doc := numeric.NewDocument(text)
	ints, err := doc.IntsAfter("mphase", 13)
	if err != nil {
		return nil, err
	}
	reals, err := doc.ValuesAfter("rgrd, rfms2", 8)
	if err != nil {
		return nil, err
	}
	x := &xsphInput{
		mphase: ints[0],
		ispec:  ints[4],
		lfms2:  ints[6],
		nph:    ints[7],
		rgrd:   reals[0],
		rfms2:  reals[1],
		gamach: reals[2],
		xkstep: reals[3],
		xkmax:  reals[4],
		vixan:  reals[5],
	}
	if v, err := doc.ValuesAfter("vr0, vi0", 2); err == nil {
		x.vr0, x.vi0 = v[0], v[1]
	}
	return x, nil
}

// screeningShift summarizes an optional wscrn.dat as an energy shift.
func screeningShift(text string) float64 {
	vals := numeric.ParseText(text, numeric.DefaultCommentPrefixes)
	if len(vals) == 0 {
		return 0
	}
	s := numeric.Summarize(vals)
	return math.Tanh(s.Mean) * 0.25
}

func computeXSPH(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleXSPH
	x, err := parseXSPHInput(in.text("xsph.inp"))
	if err != nil {
		return nil, parseError(m, req, "xsph.inp", err)
	}
	geom, err := parseGeometry(in.text("geom.dat"))
	if err != nil {
		return nil, parseError(m, req, "geom.dat", err)
	}
	if _, err := parseGlobal(in.text("global.inp")); err != nil {
		return nil, parseError(m, req, "global.inp", err)
	}
	pot, err := decodePotBin(in.bytes("pot.bin"))
	if err != nil {
		return nil, parseError(m, req, "pot.bin", err)
	}

	seed := seedSource{sum: in.checksum()}
	shift := 0.0
	if in.has("wscrn.dat") {
		shift = screeningShift(in.text("wscrn.dat"))
	}

	zeff := 0.0
	for _, p := range pot.Potentials {
		zeff += p.Zeff
	}
	if n := len(pot.Potentials); n > 0 {
		zeff /= float64(n)
	}

	step := math.Max(x.xkstep, 0.01)
	points := clampInt(int(math.Abs(x.xkmax)/step), 16, 400)
	channels := clampInt(len(pot.Potentials), 1, 16)
	hdr := PhaseBin{
		Version:        1,
		Channels:       uint32(channels),
		Points:         uint32(points),
		Mphase:         int32(x.mphase),
		Ispec:          int32(x.ispec),
		EnergyStart:    -math.Abs(pot.Scalars[3]) / 4,
		EnergyStep:     step * 5,
		BasePhase:      seed.between(1, 0, math.Pi),
		PhaseScale:     1 + zeff/100,
		Damping:        math.Abs(x.gamach)/10 + 0.01,
		ScreeningShift: shift,
	}
	if hdr.EnergyStart == 0 {
		hdr.EnergyStart = -10
	}

	w := artifact.NewBinaryWriter(magicPhase)
	w.U32(hdr.Version)
	w.U32(hdr.Channels)
	w.U32(hdr.Points)
	w.I32(hdr.Mphase)
	w.I32(hdr.Ispec)
	for _, v := range []float64{hdr.EnergyStart, hdr.EnergyStep, hdr.BasePhase, hdr.PhaseScale, hdr.Damping, hdr.ScreeningShift} {
		w.F64(v)
	}

	var xs textDoc
	xs.comment("XSPH cross section for fixture %s", req.FixtureID)
	xs.comment("channels=%d points=%d ispec=%d", channels, points, x.ispec)
	xs.comment("energy  xsnorm  xsect  imag_part")

	absorberZ := 1.0
	if len(pot.Potentials) > 0 {
		absorberZ = float64(pot.Potentials[0].Z)
	}
	for i := 0; i < points; i++ {
		e := hdr.EnergyStart + hdr.EnergyStep*float64(i)
		w.F64(e)
		k := math.Sqrt(math.Max(e-hdr.EnergyStart, 0) + 1)
		for c := 0; c < channels; c++ {
			phase := hdr.BasePhase + hdr.PhaseScale*k*0.1*float64(c+1) - hdr.ScreeningShift*float64(c)
			phase += damped(k, 0.05, 1.7, float64(c), hdr.Damping)
			w.F64(phase)
		}

		edge := 0.5 + math.Atan((e+shift)/math.Max(x.gamach, 0.1))/math.Pi
		xsnorm := edge * math.Exp(-0.002*math.Max(e, 0))
		xsect := xsnorm * absorberZ * 0.01 * (1 + 0.1*float64(len(geom.Atoms)))
		imag := damped(k, 0.02, 2.3, hdr.BasePhase, hdr.Damping)
		xs.sciRow(e, xsnorm, xsect, imag)
	}

	log := newLog("XSPH: phase shift synthesis", req.FixtureID, in)
	log.kv("mphase", x.mphase)
	log.kv("nph", x.nph)
	log.kv("atoms", len(geom.Atoms))
	log.kv("channels", channels)
	log.kv("points", points)
	log.kv("pot.bin", binaryKind(pot.Legacy, "pot"))
	log.kv("screening shift", shift)
	log.kv("wscrn.dat", presence(in.has("wscrn.dat")))

	out := newOutputSet()
	out.add("phase.bin", w.Bytes())
	out.addText("xsect.dat", xs.String())
	out.addText("log2.dat", log.String())
	return out, nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "absent"
}

func binaryKind(legacy bool, kind string) string {
	if legacy {
		return "legacy_" + kind + "_binary"
	}
	return "native"
}
