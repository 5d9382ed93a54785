package modules

import (
	"errors"
	"fmt"
	"math"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModulePOT,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"pot.inp", "geom.dat"},
			ExpectedOutputs: []string{"pot.bin", "pot.dat", "convergence.scf", "convergence.scf.fine"},
		}),
		compute: computePOT,
	})
}

type potEntry struct {
	z      int
	lmaxsc int
	xnatph float64
	xion   float64
	folp   float64
}

// potInput is the parsed pot.inp shared by POT and SCREEN.
type potInput struct {
	controls [16]int
	title    string
	scalars  [6]float64
	entries  []potEntry
}

func (p *potInput) nph() int { return p.controls[1] }
func (p *potInput) ihole() int { return p.controls[3] }
func (p *potInput) nohole() int { return p.controls[9] }
func (p *potInput) gamach() float64 { return p.scalars[0] }
func (p *potInput) rfms1() float64 { return p.scalars[5] }

func parsePotInput(text string) (*potInput, error) {
	doc := numeric.NewDocument(text)
	first, err := doc.IntsAfter("mpot, nph", 8)
	if err != nil {
		return nil, fmt.Errorf("control block: %w", err)
	}
	second, err := doc.IntsAfter("nmix, nohole", 8)
	if err != nil {
		return nil, fmt.Errorf("scf block: %w", err)
	}
	p := &potInput{}
	copy(p.controls[:8], first[:8])
	copy(p.controls[8:], second[:8])

	if p.title, err = doc.RawAfterN("nmix, nohole", 2); err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}

	scalars, err := doc.ValuesAfter("gamach, rgrd", 6)
	if err != nil {
		return nil, fmt.Errorf("scalar block: %w", err)
	}
	copy(p.scalars[:], scalars[:6])

	rows, err := doc.RowsAfter("iz, lmaxsc", 5)
	if err != nil {
		return nil, fmt.Errorf("potential table: %w", err)
	}
	for i, row := range rows {
		z, err := numeric.ToInt(row[0])
		if err != nil {
			return nil, fmt.Errorf("potential %d iz: %w", i, err)
		}
		lmax, err := numeric.ToInt(row[1])
		if err != nil {
			return nil, fmt.Errorf("potential %d lmaxsc: %w", i, err)
		}
		p.entries = append(p.entries, potEntry{z: z, lmaxsc: lmax, xnatph: row[2], xion: row[3], folp: row[4]})
	}
	if len(p.entries) == 0 {
		return nil, errors.New("potential table is empty")
	}
	if len(p.entries) != p.nph()+1 {
		return nil, fmt.Errorf("nph=%d but %d potential rows", p.nph(), len(p.entries))
	}
	return p, nil
}

func potMismatch(req core.ComputeRequest, err error) error {
	return core.ComputeError("RUN.POT_INPUT_MISMATCH",
		"fixture '%s' input contract mismatch for POT compute path: %v", req.FixtureID, err)
}

type potModel struct {
	input *potInput
	geom  *Geometry
	bin   PotBin
	iters []float64
}

func buildPotModel(input *potInput, geom *Geometry, seed seedSource) potModel {
	m := potModel{input: input, geom: geom}

	var dists []float64
	abs := geom.Absorber()
	for _, a := range geom.Atoms {
		if d := abs.Distance(a); d > 0 {
			dists = append(dists, d)
		}
	}
	stats := numeric.Summarize(dists)

	b := &m.bin
	for i, v := range input.controls {
		b.Controls[i] = int32(v)
	}
	b.Scalars = input.scalars
	b.Nat = uint32(len(geom.Atoms))
	b.Nph = uint32(input.nph())
	b.Npot = uint32(len(input.entries))
	b.RadiusMean, b.RadiusRMS, b.RadiusMax = stats.Mean, stats.RMS, stats.Max

	for i, e := range input.entries {
		z := float64(e.z)
		rws := math.Max(stats.Mean/2, 0.5)
		rec := PotRecord{
			Index:        uint32(i),
			Z:            int32(e.z),
			Lmaxsc:       int32(e.lmaxsc),
			Xnatph:       e.xnatph,
			Xion:         e.xion,
			Folp:         e.folp,
			Zeff:         z - math.Cbrt(z)*(1+0.1*seed.frac(uint(i))) + e.xion,
			LocalDensity: 3 * z / (4 * math.Pi * rws * rws * rws) * (1 + 0.05*seed.frac(uint(100+i))),
		}
		rec.Vmt0 = -math.Cbrt(rec.LocalDensity) * 7.5 * e.folp
		rec.Vxc = -0.611 * math.Cbrt(rec.LocalDensity) * 1.3
		b.Potentials = append(b.Potentials, rec)
	}
	b.Atoms = geom.Atoms

	nmix := max(input.controls[8], 1)
	nscmt := clampInt(input.controls[12], 1, 60)
	start := 1 + seed.frac(7)
	for i := 0; i < nscmt*nmix; i++ {
		m.iters = append(m.iters, start*math.Exp(-0.55*float64(i)))
	}
	return m
}

func (m potModel) encode() []byte {
	b := m.bin
	w := artifact.NewBinaryWriter(magicPot)
	for _, v := range b.Controls {
		w.I32(v)
	}
	for _, v := range b.Scalars {
		w.F64(v)
	}
	w.U32(b.Nat)
	w.U32(b.Nph)
	w.U32(b.Npot)
	w.F64(b.RadiusMean)
	w.F64(b.RadiusRMS)
	w.F64(b.RadiusMax)
	for _, p := range b.Potentials {
		w.U32(p.Index)
		w.I32(p.Z)
		w.I32(p.Lmaxsc)
		for _, v := range []float64{p.Xnatph, p.Xion, p.Folp, p.Zeff, p.LocalDensity, p.Vmt0, p.Vxc} {
			w.F64(v)
		}
	}
	for _, a := range b.Atoms {
		w.F64(a.X)
		w.F64(a.Y)
		w.F64(a.Z)
		w.I32(int32(a.Ipot))
	}
	return w.Bytes()
}

func (m potModel) renderPotDat() string {
	var d textDoc
	d.comment("POT summary: %s", m.input.title)
	d.comment("nat=%d nph=%d npot=%d ihole=%d", m.bin.Nat, m.bin.Nph, m.bin.Npot, m.input.ihole())
	d.comment("radius mean/rms/max: %s %s %s",
		artifact.FormatScientific(m.bin.RadiusMean, 6),
		artifact.FormatScientific(m.bin.RadiusRMS, 6),
		artifact.FormatScientific(m.bin.RadiusMax, 6))
	d.comment("ipot  iz  lmaxsc  xnatph  xion  folp  zeff  rho  vmt0  vxc")
	for _, p := range m.bin.Potentials {
		d.raw(fmt.Sprintf("%5d%5d%5d", p.Index, p.Z, p.Lmaxsc))
		d.sciRow(p.Xnatph, p.Xion, p.Folp, p.Zeff, p.LocalDensity, p.Vmt0, p.Vxc)
	}
	return d.String()
}

func (m potModel) renderConvergence(fine bool) string {
	var d textDoc
	if fine {
		d.comment("SCF convergence (fine mesh)")
	} else {
		d.comment("SCF convergence")
	}
	d.comment("iter  delta_charge  fermi_level")
	steps := 1
	if fine {
		steps = 4
	}
	efermi := -5 + m.bin.Scalars[3]/40
	for i, delta := range m.iters {
		for s := 0; s < steps; s++ {
			frac := float64(s) / float64(steps)
			dq := delta * math.Exp(-0.55*frac)
			d.raw(fmt.Sprintf("%6d", i*steps+s+1))
			d.sciRow(dq, efermi-dq*0.3)
		}
	}
	return d.String()
}

func computePOT(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	input, err := parsePotInput(in.text("pot.inp"))
	if err != nil {
		return nil, potMismatch(req, err)
	}
	geom, err := parseGeometry(in.text("geom.dat"))
	if err != nil {
		return nil, potMismatch(req, err)
	}
	for i, a := range geom.Atoms {
		if a.Ipot < 0 || a.Ipot > input.nph() {
			return nil, potMismatch(req, fmt.Errorf("atom %d references potential %d beyond nph=%d", i+1, a.Ipot, input.nph()))
		}
	}

	m := buildPotModel(input, geom, seedSource{sum: in.checksum()})
	out := newOutputSet()
	out.add("pot.bin", m.encode())
	out.addText("pot.dat", m.renderPotDat())
	out.addText("convergence.scf", m.renderConvergence(false))
	out.addText("convergence.scf.fine", m.renderConvergence(true))
	return out, nil
}
