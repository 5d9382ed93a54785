package modules

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

// Binary magics.
const (
	magicPot   = "POTBIN10"
	magicPhase = "XSPHBIN1"
	magicGG    = "FMSGG010"
	magicPaths = "PATHBIN1"
)

// Atom is one row of geom.dat.
type Atom struct {
	X, Y, Z float64
	Ipot    int
}

// Distance returns the Euclidean distance between a and b.
func (a Atom) Distance(b Atom) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Geometry is the parsed geom.dat.
type Geometry struct {
	Nat   int
	Nph   int
	Atoms []Atom
}

// Absorber returns the first atom with potential index 0, or the first atom.
func (g *Geometry) Absorber() Atom {
	for _, a := range g.Atoms {
		if a.Ipot == 0 {
			return a
		}
	}
	return g.Atoms[0]
}

// Shells groups neighbour distances from the absorber, rounded to 1e-4.
func (g *Geometry) Shells() []float64 {
	abs := g.Absorber()
	var shells []float64
	for _, a := range g.Atoms {
		d := math.Round(abs.Distance(a)*1e4) / 1e4
		if d == 0 {
			continue
		}
		found := false
		for _, s := range shells {
			if s == d {
				found = true
				break
			}
		}
		if !found {
			shells = append(shells, d)
		}
	}
	sort.Float64s(shells)
	return shells
}

var errNoAtoms = errors.New("geom.dat has no atom rows")

// parseGeometry reads the header row (nat, nph) and every atom row with at
// least six columns.
func parseGeometry(text string) (*Geometry, error) {
	doc := numeric.NewDocument(text)
	rows := doc.NumericRows(2)
	if len(rows) == 0 {
		return nil, errors.New("geom.dat header with nat and nph not found")
	}
	nat, err := numeric.ToInt(rows[0][0])
	if err != nil {
		return nil, fmt.Errorf("geom.dat nat: %w", err)
	}
	nph, err := numeric.ToInt(rows[0][1])
	if err != nil {
		return nil, fmt.Errorf("geom.dat nph: %w", err)
	}

	g := &Geometry{Nat: nat, Nph: nph}
	for _, row := range rows[1:] {
		if len(row) < 6 {
			continue
		}
		ipot, err := numeric.ToInt(row[4])
		if err != nil {
			return nil, fmt.Errorf("geom.dat ipot: %w", err)
		}
		g.Atoms = append(g.Atoms, Atom{X: row[1], Y: row[2], Z: row[3], Ipot: ipot})
	}
	if len(g.Atoms) == 0 {
		return nil, errNoAtoms
	}
	return g, nil
}

// Global is the subset of global.inp consumed downstream.
type Global struct {
	Nabs   int
	Iphabs int
	Ipol   int
	Ispin  int
	Elpty  float64
	Angks  float64
}

func parseGlobal(text string) (*Global, error) {
	doc := numeric.NewDocument(text)
	abs, err := doc.ValuesAfter("nabs, iphabs", 2)
	if err != nil {
		return nil, err
	}
	pol, err := doc.ValuesAfter("ipol, ispin", 5)
	if err != nil {
		return nil, err
	}
	g := &Global{Elpty: pol[3], Angks: pol[4]}
	if g.Nabs, err = numeric.ToInt(abs[0]); err != nil {
		return nil, err
	}
	if g.Iphabs, err = numeric.ToInt(abs[1]); err != nil {
		return nil, err
	}
	if g.Ipol, err = numeric.ToInt(pol[0]); err != nil {
		return nil, err
	}
	if g.Ispin, err = numeric.ToInt(pol[1]); err != nil {
		return nil, err
	}
	return g, nil
}

// PotRecord is one potential entry of pot.bin.
type PotRecord struct {
	Index        uint32
	Z            int32
	Lmaxsc       int32
	Xnatph       float64
	Xion         float64
	Folp         float64
	Zeff         float64
	LocalDensity float64
	Vmt0         float64
	Vxc          float64
}

// PotBin is the decoded pot.bin.
type PotBin struct {
	Controls   [16]int32
	Scalars    [6]float64
	Nat        uint32
	Nph        uint32
	Npot       uint32
	RadiusMean float64
	RadiusRMS  float64
	RadiusMax  float64
	Potentials []PotRecord
	Atoms      []Atom
	Legacy     bool
}

func decodePotBin(data []byte) (*PotBin, error) {
	if !artifact.HasMagic(data, magicPot) {
		return legacyPotBin(data), nil
	}
	r, err := artifact.NewBinaryReader(data, magicPot)
	if err != nil {
		return nil, err
	}
	p := &PotBin{}
	for i := range p.Controls {
		p.Controls[i] = r.I32()
	}
	for i := range p.Scalars {
		p.Scalars[i] = r.F64()
	}
	p.Nat, p.Nph, p.Npot = r.U32(), r.U32(), r.U32()
	p.RadiusMean, p.RadiusRMS, p.RadiusMax = r.F64(), r.F64(), r.F64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if p.Npot > 256 || p.Nat > 100000 {
		return nil, fmt.Errorf("pot.bin header out of range (npot=%d, nat=%d)", p.Npot, p.Nat)
	}
	for i := uint32(0); i < p.Npot; i++ {
		rec := PotRecord{Index: r.U32(), Z: r.I32(), Lmaxsc: r.I32()}
		rec.Xnatph, rec.Xion, rec.Folp = r.F64(), r.F64(), r.F64()
		rec.Zeff, rec.LocalDensity, rec.Vmt0, rec.Vxc = r.F64(), r.F64(), r.F64(), r.F64()
		p.Potentials = append(p.Potentials, rec)
	}
	for i := uint32(0); i < p.Nat; i++ {
		a := Atom{X: r.F64(), Y: r.F64(), Z: r.F64()}
		a.Ipot = int(r.I32())
		p.Atoms = append(p.Atoms, a)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// legacyPotBin synthesizes a summary for pot.bin inputs without the magic
// header.
func legacyPotBin(data []byte) *PotBin {
	s := seedSource{sum: artifact.Checksum(data)}
	p := &PotBin{Legacy: true, Nph: 1, Npot: 2, Nat: uint32(1 + len(data)%12)}
	p.RadiusMean = s.between(0, 1.2, 2.8)
	p.RadiusRMS = p.RadiusMean * 1.05
	p.RadiusMax = p.RadiusMean * 1.6
	for i := uint32(0); i < p.Npot; i++ {
		p.Potentials = append(p.Potentials, PotRecord{
			Index:        i,
			Z:            int32(6 + int(s.frac(uint(i+1))*50)),
			Lmaxsc:       2,
			Xnatph:       1,
			Folp:         1.15,
			Zeff:         s.between(uint(i+10), 1, 10),
			LocalDensity: s.between(uint(i+20), 0.01, 0.2),
			Vmt0:         -s.between(uint(i+30), 5, 20),
			Vxc:          -s.between(uint(i+40), 0.5, 3),
		})
	}
	return p
}

// PhaseBin is the decoded phase.bin.
type PhaseBin struct {
	Version        uint32
	Channels       uint32
	Points         uint32
	Mphase         int32
	Ispec          int32
	EnergyStart    float64
	EnergyStep     float64
	BasePhase      float64
	PhaseScale     float64
	Damping        float64
	ScreeningShift float64
	Rows           [][]float64
	Legacy         bool
}

func decodePhaseBin(data []byte) (*PhaseBin, error) {
	if !artifact.HasMagic(data, magicPhase) {
		return legacyPhaseBin(data), nil
	}
	r, err := artifact.NewBinaryReader(data, magicPhase)
	if err != nil {
		return nil, err
	}
	p := &PhaseBin{
		Version:  r.U32(),
		Channels: r.U32(),
		Points:   r.U32(),
		Mphase:   r.I32(),
		Ispec:    r.I32(),
	}
	p.EnergyStart, p.EnergyStep, p.BasePhase = r.F64(), r.F64(), r.F64()
	p.PhaseScale, p.Damping, p.ScreeningShift = r.F64(), r.F64(), r.F64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if p.Channels > 64 || p.Points > 100000 {
		return nil, fmt.Errorf("phase.bin header out of range (channels=%d, points=%d)", p.Channels, p.Points)
	}
	for i := uint32(0); i < p.Points; i++ {
		row := make([]float64, p.Channels+1)
		for j := range row {
			row[j] = r.F64()
		}
		p.Rows = append(p.Rows, row)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func legacyPhaseBin(data []byte) *PhaseBin {
	s := seedSource{sum: artifact.Checksum(data)}
	return &PhaseBin{
		Legacy:      true,
		Version:     0,
		Channels:    4,
		Mphase:      1,
		EnergyStart: -s.between(0, 10, 20),
		EnergyStep:  0.5,
		BasePhase:   s.between(1, 0, math.Pi),
		PhaseScale:  s.between(2, 0.5, 1.5),
		Damping:     s.between(3, 0.01, 0.1),
	}
}

// GGBin is the decoded header of gg.bin and gg_slice.bin.
type GGBin struct {
	Version  uint32
	Channels uint32
	KPoints  uint32
	Nat      uint32
	Nph      uint32
	Mfms     int32
	Idwopt   int32
	Minv     int32
	Rfms2    float64
	Rdirec   float64
	Toler1   float64
	Toler2   float64
	Trace    []complex128
	Legacy   bool
}

func decodeGGBin(data []byte) (*GGBin, error) {
	if !artifact.HasMagic(data, magicGG) {
		return legacyGGBin(data), nil
	}
	r, err := artifact.NewBinaryReader(data, magicGG)
	if err != nil {
		return nil, err
	}
	g := &GGBin{Version: r.U32(), Channels: r.U32(), KPoints: r.U32(), Nat: r.U32(), Nph: r.U32()}
	g.Mfms, g.Idwopt, g.Minv = r.I32(), r.I32(), r.I32()
	g.Rfms2, g.Rdirec, g.Toler1, g.Toler2 = r.F64(), r.F64(), r.F64(), r.F64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if g.Channels > 64 || g.KPoints > 100000 {
		return nil, fmt.Errorf("gg.bin header out of range (channels=%d, k_points=%d)", g.Channels, g.KPoints)
	}
	for k := uint32(0); k < g.KPoints; k++ {
		_ = r.F64()
		var trace complex128
		for c := uint32(0); c < g.Channels; c++ {
			trace += complex(r.F64(), r.F64())
		}
		g.Trace = append(g.Trace, trace)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

func legacyGGBin(data []byte) *GGBin {
	s := seedSource{sum: artifact.Checksum(data)}
	g := &GGBin{Legacy: true, Channels: 4, KPoints: 8, Nat: 1, Nph: 1, Rfms2: 4}
	for k := 0; k < int(g.KPoints); k++ {
		g.Trace = append(g.Trace, complex(s.between(uint(k), -1, 1), s.between(uint(k+50), 0, 1)))
	}
	return g
}
