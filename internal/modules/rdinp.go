package modules

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/deck"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

var rdinpOutputs = []string{
	"geom.dat",
	"global.inp",
	"reciprocal.inp",
	"pot.inp",
	"ldos.inp",
	"xsph.inp",
	"fms.inp",
	"paths.inp",
	"genfmt.inp",
	"ff2x.inp",
	"sfconv.inp",
	"eels.inp",
	"compton.inp",
	"band.inp",
	"rixs.inp",
	"crpa.inp",
	"fullspectrum.inp",
	"dmdw.inp",
	"log.dat",
}

func init() {
	Register(&stage{
		module: core.ModuleRDINP,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"feff.inp"},
			ExpectedOutputs: rdinpOutputs,
			OptionalOutputs: []string{"screen.inp"},
		}),
		compute: computeRDINP,
	})
}

var edgeHoles = map[string]int{
	"K": 1, "L1": 2, "L2": 3, "L3": 4,
	"M1": 5, "M2": 6, "M3": 7, "M4": 8, "M5": 9,
	"N1": 10, "N2": 11, "N3": 12, "N4": 13, "N5": 14, "N6": 15, "N7": 16,
}

type rdinpPotential struct {
	ipot   int
	z      int
	label  string
	lmax1  int
	lmax2  int
	xnatph float64
}

type rdinpScreen struct {
	key   string
	value string
}

type rdinpModel struct {
	title      string
	edge       string
	ihole      int
	potentials []rdinpPotential
	atoms      []Atom
	nph        int

	ispec    int
	rfms     float64
	lfms1    int
	rdirec   float64
	xkmax    float64
	rpath    float64
	s02      float64
	tk       float64
	thetad   float64
	sig2     float64
	idwopt   int
	nohole   int
	nscmt    int
	ca1      float64
	gamach   float64
	ldosEmin float64
	ldosEmax float64
	ldosEim  float64
	mldos    int

	compton      bool
	band         bool
	bandEmin     float64
	bandEmax     float64
	bandEstep    float64
	bandNkp      int
	rixs         bool
	rixsEdges    int
	rixsRange    [4]float64
	crpa         bool
	crpaRcut     float64
	fullSpectrum int
	screen       []rdinpScreen
	hasScreen    bool
}

func cardError(keyword string, format string, args ...any) error {
	return core.InputError("INPUT.RDINP_CARD_VALUE", "%s card: %s", keyword, fmt.Sprintf(format, args...))
}

// cardValues parses every same-line value of the card as a number.
func cardValues(c *deck.Card, min int) ([]float64, error) {
	vals := make([]float64, 0, len(c.Values))
	for _, v := range c.Values {
		f, ok := numeric.ParseToken(v)
		if !ok {
			return nil, cardError(c.Keyword, "value %q on line %d is not numeric", v, c.Line)
		}
		vals = append(vals, f)
	}
	if len(vals) < min {
		return nil, cardError(c.Keyword, "expected at least %d values on line %d, found %d", min, c.Line, len(vals))
	}
	return vals, nil
}

func cardInt(c *deck.Card, v float64) (int, error) {
	n, err := numeric.ToInt(v)
	if err != nil {
		return 0, cardError(c.Keyword, "line %d: %v", c.Line, err)
	}
	return n, nil
}

func parseRDINP(text string) (*rdinpModel, error) {
	d, err := deck.Parse(text)
	if err != nil {
		return nil, err
	}

	m := &rdinpModel{
		title:    "FEFF input",
		edge:     "K",
		ihole:    1,
		rfms:     -1,
		rdirec:   -1,
		xkmax:    20,
		rpath:    -1,
		s02:      1,
		idwopt:   -1,
		nohole:   -1,
		ldosEmin: 1000,
		ldosEmax: 0,
		ldosEim:  -1,
		crpaRcut: 1.5,
	}

	if c, ok := d.Find("TITLE"); ok && strings.TrimSpace(c.Text()) != "" {
		m.title = strings.TrimSpace(c.Text())
	}

	if err := m.readPotentials(d); err != nil {
		return nil, err
	}
	if err := m.readAtoms(d); err != nil {
		return nil, err
	}
	if err := m.readControls(d); err != nil {
		return nil, err
	}
	if err := m.readOptionalModules(d); err != nil {
		return nil, err
	}

	m.gamach = coreHoleWidth(m.potentials[0].z, m.ihole)
	return m, nil
}

func (m *rdinpModel) readPotentials(d *deck.Deck) error {
	c, ok := d.Find("POTENTIALS", "POTENTIAL")
	if !ok {
		return core.InputError("INPUT.RDINP_POTENTIALS", "feff.inp has no POTENTIALS card")
	}
	seen := map[int]bool{}
	for _, row := range c.Continuations {
		if len(row.Fields) < 2 {
			return core.InputError("INPUT.RDINP_POTENTIALS", "line %d: potential row needs ipot and Z", row.Line)
		}
		ipot, err1 := strconv.Atoi(row.Fields[0])
		z, err2 := strconv.Atoi(row.Fields[1])
		if err1 != nil || err2 != nil {
			return core.InputError("INPUT.RDINP_POTENTIALS", "line %d: ipot and Z must be integers", row.Line)
		}
		if ipot < 0 || z <= 0 || z > 118 {
			return core.InputError("INPUT.RDINP_POTENTIALS", "line %d: ipot=%d Z=%d out of range", row.Line, ipot, z)
		}
		if seen[ipot] {
			return core.InputError("INPUT.RDINP_POTENTIALS", "line %d: duplicate potential index %d", row.Line, ipot)
		}
		seen[ipot] = true

		p := rdinpPotential{ipot: ipot, z: z, lmax1: -1, lmax2: -1, xnatph: math.NaN()}
		if len(row.Fields) > 2 {
			p.label = row.Fields[2]
		} else {
			p.label = fmt.Sprintf("Z%d", z)
		}
		if len(row.Fields) > 3 {
			if v, ok := numeric.ParseToken(row.Fields[3]); ok {
				p.lmax1 = int(v)
			}
		}
		if len(row.Fields) > 4 {
			if v, ok := numeric.ParseToken(row.Fields[4]); ok {
				p.lmax2 = int(v)
			}
		}
		if len(row.Fields) > 5 {
			v, ok := numeric.ParseToken(row.Fields[5])
			if !ok {
				return core.InputError("INPUT.RDINP_POTENTIALS", "line %d: stoichiometry %q is not numeric", row.Line, row.Fields[5])
			}
			if math.Abs(v) <= 2 {
				v *= 100
			}
			p.xnatph = v
		}
		m.potentials = append(m.potentials, p)
	}
	if !seen[0] {
		return core.InputError("INPUT.RDINP_POTENTIALS", "POTENTIALS card has no absorber (ipot 0)")
	}
	sort.Slice(m.potentials, func(i, j int) bool { return m.potentials[i].ipot < m.potentials[j].ipot })
	m.nph = m.potentials[len(m.potentials)-1].ipot
	return nil
}

func (m *rdinpModel) readAtoms(d *deck.Deck) error {
	c, ok := d.Find("ATOMS")
	if !ok {
		if d.Has("CIF") {
			return core.InputError("INPUT.RDINP_ATOMS", "CIF structures must be expanded into an ATOMS card")
		}
		return core.InputError("INPUT.RDINP_ATOMS", "feff.inp has no ATOMS card")
	}
	known := map[int]bool{}
	for _, p := range m.potentials {
		known[p.ipot] = true
	}
	for _, row := range c.Continuations {
		vals := make([]float64, 0, 4)
		for _, f := range row.Fields[:min(4, len(row.Fields))] {
			v, ok := numeric.ParseToken(f)
			if !ok {
				return core.InputError("INPUT.RDINP_ATOMS", "line %d: %q is not numeric", row.Line, f)
			}
			vals = append(vals, v)
		}
		if len(vals) < 4 {
			return core.InputError("INPUT.RDINP_ATOMS", "line %d: atom row needs x y z ipot", row.Line)
		}
		ipot, err := numeric.ToInt(vals[3])
		if err != nil || !known[ipot] {
			return core.InputError("INPUT.RDINP_ATOMS", "line %d: unknown potential index %v", row.Line, vals[3])
		}
		m.atoms = append(m.atoms, Atom{X: vals[0], Y: vals[1], Z: vals[2], Ipot: ipot})
	}

	absIdx := -1
	for i, a := range m.atoms {
		if a.Ipot == 0 {
			absIdx = i
			break
		}
	}
	if absIdx < 0 {
		return core.InputError("INPUT.RDINP_ATOMS", "ATOMS card has no absorber row with ipot 0")
	}
	abs := m.atoms[absIdx]
	sort.SliceStable(m.atoms, func(i, j int) bool {
		return abs.Distance(m.atoms[i]) < abs.Distance(m.atoms[j])
	})

	for i := range m.potentials {
		p := &m.potentials[i]
		if !math.IsNaN(p.xnatph) {
			continue
		}
		count := 0
		for _, a := range m.atoms {
			if a.Ipot == p.ipot {
				count++
			}
		}
		p.xnatph = float64(count)
	}
	return nil
}

func (m *rdinpModel) readControls(d *deck.Deck) error {
	if c, ok := d.Find("EDGE"); ok {
		if len(c.Values) == 0 {
			return cardError(c.Keyword, "missing edge label on line %d", c.Line)
		}
		label := strings.ToUpper(c.Values[0])
		if hole, ok := edgeHoles[label]; ok {
			m.edge, m.ihole = label, hole
		} else if v, ok := numeric.ParseToken(label); ok {
			hole, err := cardInt(c, v)
			if err != nil {
				return err
			}
			m.ihole = hole
			m.edge = edgeLabel(hole)
		} else {
			return cardError(c.Keyword, "unknown edge %q", c.Values[0])
		}
	}

	if c, ok := d.Find("SCF"); ok {
		vals, err := cardValues(c, 1)
		if err != nil {
			return err
		}
		m.rfms = vals[0]
		m.ca1 = 0.2
		if len(vals) > 1 {
			if m.lfms1, err = cardInt(c, vals[1]); err != nil {
				return err
			}
		}
		if len(vals) > 2 {
			if m.nscmt, err = cardInt(c, vals[2]); err != nil {
				return err
			}
		}
		if len(vals) > 3 {
			m.ca1 = vals[3]
		}
	}

	if c, ok := d.Find("XANES"); ok {
		vals, err := cardValues(c, 0)
		if err != nil {
			return err
		}
		m.ispec = 1
		if m.nscmt == 0 {
			m.nscmt = 30
		}
		if len(vals) > 0 {
			m.rdirec = vals[0]
			m.xkmax = vals[0]
		}
	} else if c, ok := d.Find("EXAFS"); ok {
		vals, err := cardValues(c, 0)
		if err != nil {
			return err
		}
		if len(vals) > 0 {
			m.xkmax = vals[0]
		}
	}

	if c, ok := d.Find("RPATH"); ok {
		vals, err := cardValues(c, 1)
		if err != nil {
			return err
		}
		m.rpath = vals[0]
	}

	if c, ok := d.Find("S02"); ok {
		vals, err := cardValues(c, 1)
		if err != nil {
			return err
		}
		m.s02 = vals[0]
	}

	if c, ok := d.Find("LDOS"); ok {
		vals, err := cardValues(c, 3)
		if err != nil {
			return err
		}
		m.ldosEmin, m.ldosEmax, m.ldosEim = vals[0], vals[1], vals[2]
		m.mldos = 1
	}

	if c, ok := d.Find("DEBYE"); ok {
		vals, err := cardValues(c, 2)
		if err != nil {
			return err
		}
		m.tk, m.thetad = vals[0], vals[1]
		if len(vals) > 2 {
			if m.idwopt, err = cardInt(c, vals[2]); err != nil {
				return err
			}
		} else {
			m.idwopt = 0
		}
	}

	if c, ok := d.Find("COREHOLE"); ok {
		if len(c.Values) == 0 {
			return cardError(c.Keyword, "missing treatment on line %d", c.Line)
		}
		switch strings.ToUpper(c.Values[0]) {
		case "RPA":
			m.nohole = 2
		case "FSR":
			m.nohole = -1
		case "NONE":
			m.nohole = 0
		default:
			v, ok := numeric.ParseToken(c.Values[0])
			if !ok {
				return cardError(c.Keyword, "unknown core-hole treatment %q", c.Values[0])
			}
			n, err := cardInt(c, v)
			if err != nil {
				return err
			}
			m.nohole = n
		}
	}
	return nil
}

func (m *rdinpModel) readOptionalModules(d *deck.Deck) error {
	if c, ok := d.Find("COMPTON"); ok {
		if _, err := cardValues(c, 0); err != nil {
			return err
		}
		m.compton = true
	}

	if c, ok := d.Find("BAND", "MBAND"); ok {
		vals, err := cardValues(c, 0)
		if err != nil {
			return err
		}
		m.band = true
		m.bandEmin, m.bandEmax, m.bandEstep, m.bandNkp = -8, 6, 0.05, 100
		if len(vals) >= 3 {
			m.bandEmin, m.bandEmax, m.bandEstep = vals[0], vals[1], vals[2]
		}
		if len(vals) >= 4 {
			if m.bandNkp, err = cardInt(c, vals[3]); err != nil {
				return err
			}
		}
	}

	if c, ok := d.Find("RIXS", "XES"); ok {
		vals, err := cardValues(c, 0)
		if err != nil {
			return err
		}
		m.rixs = true
		m.rixsEdges = 1
		if c.Keyword == "RIXS" {
			m.rixsEdges = 2
		}
		m.rixsRange = [4]float64{-10, 20, -10, 20}
		copy(m.rixsRange[:], vals)
	}

	if c, ok := d.Find("CRPA"); ok {
		vals, err := cardValues(c, 0)
		if err != nil {
			return err
		}
		m.crpa = true
		if len(vals) > 0 {
			m.crpaRcut = vals[0]
		}
	}

	if c, ok := d.Find("FULLSPECTRUM", "MFULLSPECTRUM"); ok {
		vals, err := cardValues(c, 0)
		if err != nil {
			return err
		}
		m.fullSpectrum = 1
		if len(vals) > 0 {
			if m.fullSpectrum, err = cardInt(c, vals[0]); err != nil {
				return err
			}
		}
	}

	for _, c := range d.Cards {
		if c.Keyword != "SCREEN" {
			continue
		}
		m.hasScreen = true
		if len(c.Values) >= 2 {
			m.screen = append(m.screen, rdinpScreen{key: strings.ToLower(c.Values[0]), value: c.Values[1]})
		}
	}
	return nil
}

func edgeLabel(hole int) string {
	for label, h := range edgeHoles {
		if h == hole {
			return label
		}
	}
	return "K"
}

// coreHoleWidth is a smooth Z-dependent core-hole lifetime estimate in eV.
func coreHoleWidth(z, ihole int) float64 {
	zf := float64(z)
	width := 1.72919 * math.Pow(zf/29, 2.2) / float64(ihole)
	return math.Round(width*1e5) / 1e5
}

func computeRDINP(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m, err := parseRDINP(in.text("feff.inp"))
	if err != nil {
		return nil, err
	}

	out := newOutputSet()
	out.addText("geom.dat", m.renderGeom())
	out.addText("global.inp", m.renderGlobal())
	out.addText("reciprocal.inp", m.renderReciprocal())
	out.addText("pot.inp", m.renderPot())
	out.addText("ldos.inp", m.renderLDOS())
	if m.hasScreen {
		out.addText("screen.inp", m.renderScreen())
	}
	out.addText("xsph.inp", m.renderXSPH())
	out.addText("fms.inp", m.renderFMS())
	out.addText("paths.inp", m.renderPaths())
	out.addText("genfmt.inp", m.renderGenfmt())
	out.addText("ff2x.inp", m.renderFF2X())
	out.addText("sfconv.inp", m.renderSFConv())
	out.addText("eels.inp", m.renderEELS())
	out.addText("compton.inp", m.renderCompton())
	out.addText("band.inp", m.renderBand())
	out.addText("rixs.inp", m.renderRIXS())
	out.addText("crpa.inp", m.renderCRPA())
	out.addText("fullspectrum.inp", m.renderFullSpectrum())
	out.addText("dmdw.inp", m.renderDMDW())
	out.addText("log.dat", m.renderLog(req.FixtureID, len(out.names)+1))
	return out, nil
}
