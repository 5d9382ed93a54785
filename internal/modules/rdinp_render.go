package modules

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
)

func (m *rdinpModel) lmaxphRow() []int {
	row := make([]int, m.nph+1)
	for i := range row {
		row[i] = 3
	}
	for _, p := range m.potentials {
		if p.lmax2 >= 0 {
			row[p.ipot] = p.lmax2
		}
	}
	return row
}

func (m *rdinpModel) renderGeom() string {
	var d textDoc
	d.line(" nat, nph = %5d%5d", len(m.atoms), m.nph)
	d.line(" iat     x       y        z       iph")
	d.line(" %s", strings.Repeat("-", 71))
	for i, a := range m.atoms {
		d.line("%6d%s%s%s%5d%5d", i+1,
			artifact.FormatFixed(a.X, 13, 5),
			artifact.FormatFixed(a.Y, 13, 5),
			artifact.FormatFixed(a.Z, 13, 5),
			a.Ipot, 1)
	}
	return d.String()
}

func (m *rdinpModel) renderGlobal() string {
	var d textDoc
	d.line(" nabs, iphabs - CFAVERAGE data")
	d.line("%6d%6d%s", 1, 0, artifact.FormatFixed(100000, 14, 5))
	d.line(" ipol, ispin, le2, elpty, angks")
	d.line("%6d%6d%6d%s%s", 0, 0, 0, artifact.FormatFixed(0, 12, 4), artifact.FormatFixed(0, 12, 4))
	d.line(" evec		xivec		spvec")
	for _, row := range [][3]float64{{0, 0, 1}, {0, 0, 0}, {0, 0, 0}} {
		d.fixedRow(13, 5, row[0], row[1], row[2])
	}
	d.line(" nq, ispec, rclabs")
	d.line("%6d%6d%s", 1, m.ispec, artifact.FormatFixed(m.rpath, 13, 5))
	return d.String()
}

func (m *rdinpModel) renderReciprocal() string {
	var d textDoc
	d.line(" spacy")
	d.line("%6d", 1)
	return d.String()
}

func (m *rdinpModel) renderPot() string {
	var d textDoc
	d.line(" mpot, nph, ntitle, ihole, ipr1, iafolp, ixc,ispec")
	d.intRow(5, 1, m.nph, 1, m.ihole, 0, 0, 0, m.ispec)
	d.line(" nmix, nohole, jumprm, inters, nscmt, icoul, lfms1, iunf")
	d.intRow(5, 1, m.nohole, 0, 0, m.nscmt, 0, m.lfms1, 0)
	d.line(" %s", m.title)
	d.line(" gamach, rgrd, ca1, ecv, totvol, rfms1")
	d.fixedRow(12, 5, m.gamach, 0.05, m.ca1, -40, 0, m.rfms)
	d.line(" iz, lmaxsc, xnatph, xion, folp")
	for _, p := range m.potentials {
		d.line("%5d%5d%s%s%s", p.z, 2,
			artifact.FormatFixed(p.xnatph, 12, 5),
			artifact.FormatFixed(0, 12, 5),
			artifact.FormatFixed(1.15, 12, 5))
	}
	d.line(" ExternalPot switch, StartFromFile switch")
	d.line(" F F")
	return d.String()
}

func (m *rdinpModel) renderLDOS() string {
	var d textDoc
	d.line(" mldos, lfms2, ixc, ispin, minv")
	d.intRow(5, m.mldos, 0, 0, 0, 0)
	d.line(" rfms2, emin, emax, eimag, rgrd")
	d.fixedRow(12, 5, m.rfms, m.ldosEmin, m.ldosEmax, m.ldosEim, 0.05)
	d.line(" rdirec, toler1, toler2")
	d.fixedRow(12, 5, m.rdirec, 0.001, 0.001)
	d.line(" lmaxph(0:nph)")
	d.intRow(5, m.lmaxphRow()...)
	return d.String()
}

var screenDefaults = []rdinpScreen{
	{"ner", "40"},
	{"nei", "20"},
	{"maxl", "4"},
	{"irrh", "1"},
	{"iend", "0"},
	{"lfxc", "0"},
	{"emin", "-40.0"},
	{"emax", "0.0"},
	{"eimax", "2.0"},
	{"ermin", "0.001"},
	{"rfms", "4.0"},
	{"nrptx0", "251"},
}

func (m *rdinpModel) renderScreen() string {
	values := make([]rdinpScreen, len(screenDefaults))
	copy(values, screenDefaults)
	for _, o := range m.screen {
		replaced := false
		for i := range values {
			if values[i].key == o.key {
				values[i].value = o.value
				replaced = true
			}
		}
		if !replaced {
			values = append(values, o)
		}
	}
	var d textDoc
	for _, v := range values {
		d.line(" %-10s%10s", v.key, v.value)
	}
	return d.String()
}

func (m *rdinpModel) renderXSPH() string {
	var d textDoc
	d.line(" mphase,ipr2,ixc,ixc0,ispec,lreal,lfms2,nph,l2lp,iPlsmn,NPoles,iGammaCH,iGrid")
	d.intRow(5, 1, 0, 0, 0, m.ispec, 0, 0, m.nph, 0, 0, 100, 0, 0)
	d.line(" vr0, vi0")
	d.fixedRow(12, 5, 0, 0)
	d.line(" lmaxph(0:nph)")
	d.intRow(5, m.lmaxphRow()...)
	d.line(" potlbl(0:nph)")
	labels := make([]string, len(m.potentials))
	for i, p := range m.potentials {
		labels[i] = fmt.Sprintf("'%s'", p.label)
	}
	d.line(" %s", strings.Join(labels, " "))
	d.line(" rgrd, rfms2, gamach, xkstep, xkmax, vixan, Eps0, EGap")
	d.fixedRow(12, 5, 0.05, m.rfms, m.gamach, 0.07, m.xkmax, 0, 0, 0)
	return d.String()
}

func (m *rdinpModel) renderFMS() string {
	var d textDoc
	d.line(" mfms, idwopt, minv")
	d.intRow(5, 1, m.idwopt, 0)
	d.line(" rfms2, rdirec, toler1, toler2")
	d.fixedRow(12, 5, m.rfms, m.rdirec, 0.001, 0.001)
	d.line(" tk, thetad, sig2g")
	d.fixedRow(12, 5, m.tk, m.thetad, m.sig2)
	d.line(" lmaxph(0:nph)")
	d.intRow(5, m.lmaxphRow()...)
	return d.String()
}

func (m *rdinpModel) renderPaths() string {
	var d textDoc
	d.line(" mpath, ms, nncrit, nlegxx, ipr4")
	d.intRow(5, 1, 1, 0, 10, 0)
	d.line(" critpw, pcritk, pcrith,  rmax,  rfms2")
	d.fixedRow(12, 5, 2.5, 0, 0, m.rpath, m.rfms)
	return d.String()
}

func (m *rdinpModel) renderGenfmt() string {
	var d textDoc
	d.line(" mfeff, ipr5, iorder, critcw, wnstar")
	d.line("%5d%5d%5d%s    F", 1, 0, 2, artifact.FormatFixed(4, 12, 5))
	return d.String()
}

func (m *rdinpModel) renderFF2X() string {
	var d textDoc
	d.line(" mchi, ispec, idwopt, ipr6, mbconv, absolu, iGammaCH")
	d.intRow(5, 1, m.ispec, m.idwopt, 0, 0, 0, 0)
	d.line(" vrcorr, vicorr, s02, critcw")
	d.fixedRow(12, 5, 0, 0, m.s02, 4)
	d.line(" tk, thetad, alphat, thetae, sig2g")
	d.fixedRow(12, 5, m.tk, m.thetad, 0, 0, m.sig2)
	return d.String()
}

func (m *rdinpModel) renderSFConv() string {
	var d textDoc
	d.line(" msfconv, ipse, ipsk")
	d.intRow(5, 1, 0, 0)
	d.line(" wsigk, cen")
	d.fixedRow(12, 5, 0, 0)
	d.line(" ispec, ipr6")
	d.intRow(5, m.ispec, 0)
	d.line(" cfname")
	d.line(" NULL")
	return d.String()
}

func (m *rdinpModel) renderEELS() string {
	var d textDoc
	d.line(" calculate ELNES?")
	d.intRow(5, 0)
	d.line(" average? relativistic? cross-terms? Which input?")
	d.intRow(5, 1, 1, 1, 1, 4)
	d.line(" polarizations to be used ; min step max")
	d.intRow(5, 1, 1, 9)
	d.line(" beam energy in eV")
	d.fixedRow(14, 4, 300000)
	d.line(" beam direction in arbitrary units")
	d.fixedRow(12, 5, 0, 1, 0)
	d.line(" collection and convergence semiangle in rad")
	d.fixedRow(12, 5, 0.0024, 0)
	d.line(" qmesh - radial and angular grid size")
	d.intRow(5, 5, 3)
	d.line(" detector positions - two angles in rad")
	d.fixedRow(12, 5, 0, 0)
	d.line(" calculate magic angle if magic=1")
	d.intRow(5, 0)
	d.line(" energy for magic angle - eV above threshold")
	d.fixedRow(12, 5, 0)
	return d.String()
}

func fortranBool(b bool) string {
	if b {
		return "T"
	}
	return "F"
}

func (m *rdinpModel) renderCompton() string {
	var d textDoc
	d.line(" run compton module?")
	d.line(" %s", fortranBool(m.compton))
	d.line(" pqmax, npq")
	d.line("%s%8d", artifact.FormatFixed(5, 12, 5), 1000)
	d.line(" ns, nphi, nz, nzp")
	d.intRow(6, 32, 32, 32, 144)
	d.line(" smax, phimax, zmax, zpmax")
	d.fixedRow(12, 5, 0, 6.28319, 0, 10)
	d.line(" jpq? rhozzp? force_jzzp?")
	d.line(" T T F")
	d.line(" window_type (0=Step, 1=Hann), window_cutoff")
	d.line("%6d%s", 1, artifact.FormatFixed(0, 12, 5))
	d.line(" temperature (in eV)")
	d.fixedRow(12, 5, 0)
	d.line(" set_chemical_potential? chemical_potential(eV)")
	d.line(" F%s", artifact.FormatFixed(0, 12, 5))
	d.line(" qhat_x qhat_y qhat_z")
	d.fixedRow(12, 5, 0, 0, 1)
	return d.String()
}

func (m *rdinpModel) renderBand() string {
	var d textDoc
	d.line(" mband : calculate bands if = 1")
	d.intRow(5, boolInt(m.band))
	d.line(" emin, emax, estep : energy mesh")
	d.fixedRow(12, 5, m.bandEmin, m.bandEmax, m.bandEstep)
	d.line(" nkp : # points in k-path")
	d.intRow(5, m.bandNkp)
	d.line(" ikpath : type of k-path")
	d.intRow(5, -1)
	d.line(" freeprop :  empty lattice if = T")
	d.line(" F")
	return d.String()
}

func (m *rdinpModel) renderRIXS() string {
	var d textDoc
	d.line(" m_run")
	d.intRow(5, boolInt(m.rixs))
	d.line(" gam_ch, gam_exp(1), gam_exp(2)")
	d.fixedRow(12, 5, m.gamach, 0, 0)
	d.line(" EMinI, EMaxI, EMinF, EMaxF")
	d.fixedRow(12, 5, m.rixsRange[0], m.rixsRange[1], m.rixsRange[2], m.rixsRange[3])
	d.line(" xmu")
	d.fixedRow(12, 5, 0)
	d.line(" Readpoles, SkipCalc, MBConv, ReadSigma")
	d.line(" T F F F")
	d.line(" nEdges")
	d.intRow(5, max(m.rixsEdges, 1))
	for i := 1; i <= max(m.rixsEdges, 1); i++ {
		d.line(" Edge %d", i)
		d.line(" %s", m.edge)
	}
	return d.String()
}

func (m *rdinpModel) renderCRPA() string {
	var d textDoc
	d.line(" do_CRPA  %8d", boolInt(m.crpa))
	d.line(" rcut     %s", artifact.FormatFixed(m.crpaRcut, 8, 3))
	d.line(" l_crpa   %8d", 3)
	return d.String()
}

func (m *rdinpModel) renderFullSpectrum() string {
	var d textDoc
	d.line(" mFullSpectrum")
	d.intRow(5, m.fullSpectrum)
	return d.String()
}

func (m *rdinpModel) renderDMDW() string {
	var d textDoc
	d.line("%6d          ! dmdw mode (0 = off)", 0)
	d.line("%6d          ! Lanczos recursion order", 6)
	d.line("%6d          ! number of temperatures", 1)
	d.line("%s    ! temperature grid (K)", artifact.FormatFixed(max(m.tk, 300), 10, 2))
	d.line("%6d          ! path count", 1)
	d.line("%6d%6d    ! atom pair", 1, min(2, len(m.atoms)))
	return d.String()
}

func (m *rdinpModel) renderLog(fixtureID string, outputs int) string {
	var d textDoc
	d.line(" RDINP: feff.inp parsed for fixture %s", fixtureID)
	d.line(" title: %s", m.title)
	d.line(" edge: %s (ihole=%d)", m.edge, m.ihole)
	d.line(" Core hole lifetime is %s eV.", artifact.FormatFixed(m.gamach, 0, 5))
	d.line(" potentials: %d (nph=%d)", len(m.potentials), m.nph)
	d.line(" atoms: %d", len(m.atoms))
	d.line(" spectroscopy: ispec=%d xkmax=%s", m.ispec, artifact.FormatFixed(m.xkmax, 0, 3))
	d.line(" optional decks: screen=%s compton=%s band=%s rixs=%s crpa=%s fullspectrum=%d",
		fortranBool(m.hasScreen), fortranBool(m.compton), fortranBool(m.band),
		fortranBool(m.rixs), fortranBool(m.crpa), m.fullSpectrum)
	d.line(" decks written: %d", outputs)
	return d.String()
}
