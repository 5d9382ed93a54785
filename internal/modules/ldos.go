package modules

import (
	"fmt"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

var ldosInputs = []string{"ldos.inp", "geom.dat", "pot.bin", "reciprocal.inp"}

func init() {
	Register(&stage{
		module:   core.ModuleLDOS,
		contract: ldosContract,
		compute:  computeLDOS,
	})
}

type ldosInput struct {
	mldos  int
	lfms2  int
	ixc    int
	ispin  int
	minv   int
	rfms2  float64
	emin   float64
	emax   float64
	eimag  float64
	rgrd   float64
	rdirec float64
	lmaxph []int
}

func (l *ldosInput) nph() int { return len(l.lmaxph) - 1 }

func parseLDOSInput(text string) (*ldosInput, error) {
	doc := numeric.NewDocument(text)
	ints, err := doc.IntsAfter("mldos, lfms2", 5)
	if err != nil {
		return nil, err
	}
	mesh, err := doc.ValuesAfter("rfms2, emin", 5)
	if err != nil {
		return nil, err
	}
	dir, err := doc.ValuesAfter("rdirec", 3)
	if err != nil {
		return nil, err
	}
	lmax, err := doc.IntsAfter("lmaxph", 1)
	if err != nil {
		return nil, err
	}
	return &ldosInput{
		mldos: ints[0], lfms2: ints[1], ixc: ints[2], ispin: ints[3], minv: ints[4],
		rfms2: mesh[0], emin: mesh[1], emax: mesh[2], eimag: mesh[3], rgrd: mesh[4],
		rdirec: dir[0],
		lmaxph: lmax,
	}, nil
}

func ldosName(ipot int) string {
	return fmt.Sprintf("ldos%02d.dat", ipot)
}

// ldosContract lists one ldosNN.dat per potential declared in ldos.inp.
func ldosContract(req core.ComputeRequest) (Contract, error) {
	data, err := readInput(core.ModuleLDOS, req, "ldos.inp")
	if err != nil {
		return Contract{}, err
	}
	l, err := parseLDOSInput(string(data))
	if err != nil {
		return Contract{}, parseError(core.ModuleLDOS, req, "ldos.inp", err)
	}
	outputs := make([]string, 0, l.nph()+2)
	for i := 0; i <= l.nph(); i++ {
		outputs = append(outputs, ldosName(i))
	}
	outputs = append(outputs, "logdos.dat")
	return Contract{RequiredInputs: ldosInputs, ExpectedOutputs: outputs}, nil
}

func computeLDOS(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleLDOS
	l, err := parseLDOSInput(in.text("ldos.inp"))
	if err != nil {
		return nil, parseError(m, req, "ldos.inp", err)
	}
	geom, err := parseGeometry(in.text("geom.dat"))
	if err != nil {
		return nil, parseError(m, req, "geom.dat", err)
	}
	pot, err := decodePotBin(in.bytes("pot.bin"))
	if err != nil {
		return nil, parseError(m, req, "pot.bin", err)
	}
	if len(numeric.NewDocument(in.text("reciprocal.inp")).NumericRows(1)) == 0 {
		return nil, parseError(m, req, "reciprocal.inp", fmt.Errorf("no numeric rows"))
	}

	emin, emax := l.emin, l.emax
	if emin >= emax {
		emin, emax = -20, 20
	}
	width := l.eimag
	if width <= 0 {
		width = 0.1
	}
	npts := clampInt(int((emax-emin)/0.25)+1, 2, 801)
	step := (emax - emin) / float64(npts-1)
	seed := seedSource{sum: in.checksum()}
	cluster := clusterAtoms(geom, l.rfms2)

	out := newOutputSet()
	for ipot := 0; ipot <= l.nph(); ipot++ {
		rec := PotRecord{Z: 1, Vmt0: -10}
		if len(pot.Potentials) > 0 {
			rec = pot.Potentials[ipot%len(pot.Potentials)]
		}
		lmax := clampInt(l.lmaxph[ipot], 0, 3)

		var d textDoc
		d.comment("LDOS for potential %d (Z=%d) fixture %s", ipot, rec.Z, req.FixtureID)
		d.comment("emin=%s emax=%s eimag=%s npts=%d", artifact.FormatFixed(emin, 0, 3),
			artifact.FormatFixed(emax, 0, 3), artifact.FormatFixed(width, 0, 3), npts)
		header := "energy"
		for ll := 0; ll <= lmax; ll++ {
			header += fmt.Sprintf("  l=%d", ll)
		}
		d.comment("%s  total", header)

		for i := 0; i < npts; i++ {
			e := emin + step*float64(i)
			row := []float64{e}
			total := 0.0
			for ll := 0; ll <= lmax; ll++ {
				center := rec.Vmt0/4 + float64(ll)*2.5 + seed.between(uint(ipot*8+ll), -1, 1)
				w := width * float64(ll+1) * (1 + 0.05*float64(len(cluster)))
				v := float64(2*ll+1) * lorentz(e, center, w)
				total += v
				row = append(row, v)
			}
			row = append(row, total)
			d.sciRow(row...)
		}
		out.addText(ldosName(ipot), d.String())
	}

	log := newLog("LDOS: angular-momentum projected density of states", req.FixtureID, in)
	log.kv("mldos", l.mldos)
	log.kv("potentials", l.nph()+1)
	log.kv("cluster atoms", len(cluster))
	log.kv("points", npts)
	log.kv("pot.bin", binaryKind(pot.Legacy, "pot"))
	out.addText("logdos.dat", log.String())
	return out, nil
}
