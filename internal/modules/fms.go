package modules

import (
	"math"
	"math/cmplx"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleFMS,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"fms.inp", "geom.dat", "global.inp", "phase.bin"},
			ExpectedOutputs: []string{"gg.bin", "log3.dat"},
		}),
		compute: computeFMS,
	})
}

type fmsInput struct {
	mfms   int
	idwopt int
	minv   int
	rfms2  float64
	rdirec float64
	toler1 float64
	toler2 float64
	tk     float64
	thetad float64
	sig2g  float64
}

func parseFMSInput(text string) (*fmsInput, error) {
	doc := numeric.NewDocument(text)
	ints, err := doc.IntsAfter("mfms, idwopt", 3)
	if err != nil {
		return nil, err
	}
	radii, err := doc.ValuesAfter("rfms2, rdirec", 4)
	if err != nil {
		return nil, err
	}
	debye, err := doc.ValuesAfter("tk, thetad", 3)
	if err != nil {
		return nil, err
	}
	return &fmsInput{
		mfms: ints[0], idwopt: ints[1], minv: ints[2],
		rfms2: radii[0], rdirec: radii[1], toler1: radii[2], toler2: radii[3],
		tk: debye[0], thetad: debye[1], sig2g: debye[2],
	}, nil
}

// clusterAtoms returns the atoms within radius of the absorber; a
// non-positive radius keeps every atom.
func clusterAtoms(geom *Geometry, radius float64) []Atom {
	if radius <= 0 {
		return geom.Atoms
	}
	abs := geom.Absorber()
	var out []Atom
	for _, a := range geom.Atoms {
		if abs.Distance(a) <= radius+1e-9 {
			out = append(out, a)
		}
	}
	return out
}

func debyeWallerFactor(k, tk, thetad, sig2g float64) float64 {
	sig2 := sig2g
	if thetad > 0 {
		sig2 += 0.003 * (1 + tk/thetad)
	}
	return math.Exp(-2 * k * k * sig2)
}

func computeFMS(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleFMS
	f, err := parseFMSInput(in.text("fms.inp"))
	if err != nil {
		return nil, parseError(m, req, "fms.inp", err)
	}
	geom, err := parseGeometry(in.text("geom.dat"))
	if err != nil {
		return nil, parseError(m, req, "geom.dat", err)
	}
	if _, err := parseGlobal(in.text("global.inp")); err != nil {
		return nil, parseError(m, req, "global.inp", err)
	}
	phase, err := decodePhaseBin(in.bytes("phase.bin"))
	if err != nil {
		return nil, parseError(m, req, "phase.bin", err)
	}

	cluster := clusterAtoms(geom, f.rfms2)
	abs := geom.Absorber()
	channels := clampInt(int(phase.Channels), 1, 16)
	kPoints := 32
	if len(phase.Rows) > 0 {
		kPoints = clampInt(len(phase.Rows), 16, 128)
	}

	w := artifact.NewBinaryWriter(magicGG)
	w.U32(1)
	w.U32(uint32(channels))
	w.U32(uint32(kPoints))
	w.U32(uint32(len(cluster)))
	w.U32(uint32(geom.Nph))
	w.I32(int32(f.mfms))
	w.I32(int32(f.idwopt))
	w.I32(int32(f.minv))
	for _, v := range []float64{f.rfms2, f.rdirec, f.toler1, f.toler2} {
		w.F64(v)
	}

	traceMax := 0.0
	for i := 0; i < kPoints; i++ {
		k := 0.1 + 0.15*float64(i)
		w.F64(k)
		dw := debyeWallerFactor(k, f.tk, f.thetad, f.sig2g)
		for c := 0; c < channels; c++ {
			basePhase := phase.BasePhase
			if i < len(phase.Rows) && c+1 < len(phase.Rows[i]) {
				basePhase = phase.Rows[i][c+1]
			}
			var g complex128
			for _, a := range cluster {
				r := abs.Distance(a)
				if r == 0 {
					continue
				}
				g += cmplx.Exp(complex(0, 2*k*r+basePhase)) * complex(dw/(k*r*r), 0)
			}
			g *= complex(1/float64(c+1), 0)
			traceMax = math.Max(traceMax, cmplx.Abs(g))
			w.F64(real(g))
			w.F64(imag(g))
		}
	}

	log := newLog("FMS: full multiple scattering", req.FixtureID, in)
	log.kv("cluster atoms", len(cluster))
	log.kv("rfms2", f.rfms2)
	log.kv("channels", channels)
	log.kv("k points", kPoints)
	log.kv("max |G|", traceMax)
	log.kv("phase.bin", binaryKind(phase.Legacy, "phase"))

	out := newOutputSet()
	out.add("gg.bin", w.Bytes())
	out.addText("log3.dat", log.String())
	return out, nil
}
