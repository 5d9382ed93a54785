package modules

import (
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

const maxPaths = 200

func init() {
	Register(&stage{
		module: core.ModulePATH,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"paths.inp", "geom.dat", "global.inp", "phase.bin"},
			ExpectedOutputs: []string{"paths.dat", "paths.bin", "crit.dat", "log4.dat"},
		}),
		compute: computePATH,
	})
}

type pathsInput struct {
	mpath  int
	ms     int
	nlegxx int
	critpw float64
	rmax   float64
	rfms2  float64
}

func parsePathsInput(text string) (*pathsInput, error) {
	doc := numeric.NewDocument(text)
	ints, err := doc.IntsAfter("mpath, ms", 5)
	if err != nil {
		return nil, err
	}
	reals, err := doc.ValuesAfter("critpw", 5)
	if err != nil {
		return nil, err
	}
	return &pathsInput{
		mpath:  ints[0],
		ms:     ints[1],
		nlegxx: ints[3],
		critpw: reals[0],
		rmax:   reals[3],
		rfms2:  reals[4],
	}, nil
}

// scatteringPath is a grouped path: its legs visit the listed atoms and
// return to the absorber.
type scatteringPath struct {
	index      int
	atoms      []Atom
	degeneracy float64
	reff       float64
	amplitude  float64
}

func (p scatteringPath) nleg() int {
	return len(p.atoms) + 1
}

func roundReff(r float64) float64 {
	return math.Round(r*1e4) / 1e4
}

func enumeratePaths(geom *Geometry, rmax float64, multiple bool) []scatteringPath {
	abs := geom.Absorber()
	type key struct {
		nleg int
		reff float64
	}
	groups := map[key]*scatteringPath{}
	var order []key

	addPath := func(atoms []Atom, reff float64) {
		k := key{nleg: len(atoms) + 1, reff: roundReff(reff)}
		if g, ok := groups[k]; ok {
			g.degeneracy++
			return
		}
		groups[k] = &scatteringPath{atoms: atoms, degeneracy: 1, reff: k.reff}
		order = append(order, k)
	}

	var neighbours []Atom
	for _, a := range geom.Atoms {
		d := abs.Distance(a)
		if d == 0 || d > rmax {
			continue
		}
		neighbours = append(neighbours, a)
		addPath([]Atom{a}, d)
	}

	if multiple {
		for i, a := range neighbours {
			for j, b := range neighbours {
				if i == j {
					continue
				}
				half := (abs.Distance(a) + a.Distance(b) + b.Distance(abs)) / 2
				if half <= rmax {
					addPath([]Atom{a, b}, half)
				}
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].reff != order[j].reff {
			return order[i].reff < order[j].reff
		}
		return order[i].nleg < order[j].nleg
	})
	if len(order) > maxPaths {
		order = order[:maxPaths]
	}

	paths := make([]scatteringPath, 0, len(order))
	for i, k := range order {
		p := *groups[k]
		p.index = i + 1
		paths = append(paths, p)
	}
	return paths
}

func phaseAmplitude(phase *PhaseBin) float64 {
	if len(phase.Rows) == 0 {
		return 1 / (1 + phase.Damping)
	}
	sum := 0.0
	for _, row := range phase.Rows {
		if len(row) > 1 {
			sum += math.Cos(row[1])
		}
	}
	return 0.5 + 0.5*math.Abs(sum/float64(len(phase.Rows)))
}

func legGeometry(prev, cur, next Atom) (beta, eta float64) {
	ax, ay, az := prev.X-cur.X, prev.Y-cur.Y, prev.Z-cur.Z
	bx, by, bz := next.X-cur.X, next.Y-cur.Y, next.Z-cur.Z
	na := math.Sqrt(ax*ax + ay*ay + az*az)
	nb := math.Sqrt(bx*bx + by*by + bz*bz)
	if na == 0 || nb == 0 {
		return 0, 0
	}
	cos := (ax*bx + ay*by + az*bz) / (na * nb)
	cos = math.Max(-1, math.Min(1, cos))
	beta = 180 - math.Acos(cos)*180/math.Pi
	eta = math.Mod(math.Atan2(by, bx)*180/math.Pi+360, 360)
	return beta, eta
}

func computePATH(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModulePATH
	pin, err := parsePathsInput(in.text("paths.inp"))
	if err != nil {
		return nil, parseError(m, req, "paths.inp", err)
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

	rmax := pin.rmax
	if rmax <= 0 {
		shells := geom.Shells()
		rmax = 4.0
		if len(shells) > 0 {
			rmax = shells[min(2, len(shells)-1)] + 0.01
		}
	}

	paths := enumeratePaths(geom, rmax, pin.nlegxx > 2)
	amp := phaseAmplitude(phase)
	maxImportance := 0.0
	for i := range paths {
		p := &paths[i]
		p.amplitude = amp * p.degeneracy / (p.reff * p.reff) * math.Pow(0.6, float64(p.nleg()-2))
		maxImportance = math.Max(maxImportance, p.amplitude)
	}

	abs := geom.Absorber()
	var pd textDoc
	pd.line(" PATH  Rmax=%s,  Keep_limit= 0.00, Heap_limit 0.00  Pwcrit=%s%%",
		artifact.FormatFixed(rmax, 7, 3), artifact.FormatFixed(pin.critpw, 6, 2))
	pd.line(" %s", "-----------------------------------------------------------------------")
	for _, p := range paths {
		pd.line("%6d%5d%s  index, nleg, degeneracy, r=%s",
			p.index, p.nleg(), artifact.FormatFixed(p.degeneracy, 8, 3), artifact.FormatFixed(p.reff, 9, 4))
		pd.line("      x           y           z     ipot  label      rleg      beta        eta")
		visit := append(append([]Atom{}, p.atoms...), abs)
		prev := abs
		for i, a := range visit {
			next := abs
			if i+1 < len(visit) {
				next = visit[i+1]
			}
			beta, eta := legGeometry(prev, a, next)
			pd.line("%s%s%s%4d 'ipot%-2d'%s%s%s",
				artifact.FormatFixed(a.X, 11, 6), artifact.FormatFixed(a.Y, 12, 6), artifact.FormatFixed(a.Z, 12, 6),
				a.Ipot, a.Ipot,
				artifact.FormatFixed(prev.Distance(a), 10, 4),
				artifact.FormatFixed(beta, 10, 4),
				artifact.FormatFixed(eta, 10, 4))
			prev = a
		}
	}

	bin := artifact.NewBinaryWriter(magicPaths)
	bin.U32(uint32(len(paths)))
	for _, p := range paths {
		bin.U32(uint32(p.index))
		bin.U32(uint32(p.nleg()))
		bin.F64(p.degeneracy)
		bin.F64(p.reff)
		bin.F64(p.amplitude)
	}

	var crit textDoc
	crit.comment("path importance relative to the strongest path")
	crit.comment("index  nleg  degeneracy  reff  importance(%%)  kept")
	kept := 0
	for _, p := range paths {
		importance := 0.0
		if maxImportance > 0 {
			importance = 100 * p.amplitude / maxImportance
		}
		keep := importance >= pin.critpw
		if keep {
			kept++
		}
		crit.line("%6d%5d%s%s%s%3s", p.index, p.nleg(),
			artifact.FormatFixed(p.degeneracy, 9, 3),
			artifact.FormatFixed(p.reff, 10, 4),
			artifact.FormatFixed(importance, 10, 3),
			fortranBool(keep))
	}

	log := newLog("PATH: path enumeration", req.FixtureID, in)
	log.kv("rmax", rmax)
	log.kv("atoms", len(geom.Atoms))
	log.kv("paths", len(paths))
	log.kv("paths kept", kept)
	log.kv("multiple scattering", fortranBool(pin.nlegxx > 2))
	log.kv("phase.bin", binaryKind(phase.Legacy, "phase"))
	log.line(" %s", fmt.Sprintf("phase amplitude %s", artifact.FormatScientific(amp, 6)))

	out := newOutputSet()
	out.addText("paths.dat", pd.String())
	out.add("paths.bin", bin.Bytes())
	out.addText("crit.dat", crit.String())
	out.addText("log4.dat", log.String())
	return out, nil
}
