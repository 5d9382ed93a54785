package modules

import (
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/deck"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleDEBYE,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"ff2x.inp", "paths.dat", "feff.inp"},
			OptionalInputs:  []string{"spring.inp"},
			ExpectedOutputs: []string{"s2_em.dat", "s2_rm1.dat", "s2_rm2.dat", "xmu.dat", "chi.dat", "log6.dat"},
			OptionalOutputs: []string{"spring.dat"},
		}),
		compute: computeDEBYE,
	})
}

type ff2xInput struct {
	mchi   int
	ispec  int
	idwopt int
	vrcorr float64
	vicorr float64
	s02    float64
	tk     float64
	thetad float64
	alphat float64
	sig2g  float64
}

func parseFF2XInput(text string) (*ff2xInput, error) {
	doc := numeric.NewDocument(text)
	ints, err := doc.IntsAfter("mchi, ispec", 7)
	if err != nil {
		return nil, err
	}
	corr, err := doc.ValuesAfter("vrcorr, vicorr", 4)
	if err != nil {
		return nil, err
	}
	temp, err := doc.ValuesAfter("tk, thetad, alphat", 5)
	if err != nil {
		return nil, err
	}
	f := &ff2xInput{
		mchi: ints[0], ispec: ints[1], idwopt: ints[2],
		vrcorr: corr[0], vicorr: corr[1], s02: corr[2],
		tk: temp[0], thetad: temp[1], alphat: temp[2], sig2g: temp[4],
	}
	if f.s02 <= 0 {
		f.s02 = 1
	}
	return f, nil
}

// pathSummary is one path header line of paths.dat.
type pathSummary struct {
	index      int
	nleg       int
	degeneracy float64
	reff       float64
}

func parsePathsDat(text string) ([]pathSummary, error) {
	var paths []pathSummary
	for _, line := range numeric.SplitLines(text) {
		if !strings.Contains(strings.ToLower(line), "index, nleg, degeneracy") {
			continue
		}
		vals := numeric.ParseLine(line)
		if len(vals) < 4 {
			return nil, fmt.Errorf("path header %q has %d values", strings.TrimSpace(line), len(vals))
		}
		index, err := numeric.ToInt(vals[0])
		if err != nil {
			return nil, err
		}
		nleg, err := numeric.ToInt(vals[1])
		if err != nil {
			return nil, err
		}
		paths = append(paths, pathSummary{index: index, nleg: nleg, degeneracy: vals[2], reff: vals[len(vals)-1]})
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no path headers found")
	}
	return paths, nil
}

// sigma2 returns the Debye-Waller factor of p under one of three models:
// 0 is the correlated Einstein estimate, 1 and 2 are recursion variants.
func sigma2(p pathSummary, tk, thetad float64, model int) float64 {
	if thetad <= 0 {
		thetad = 300
	}
	x := thetad / math.Max(tk, 1)
	base := 0.00208 * 200 / thetad / math.Tanh(x/2) * float64(p.nleg) / 2
	switch model {
	case 1:
		return base * (1 + 0.05/p.reff)
	case 2:
		return base * (1 + 0.05/p.reff) * (1 - 0.02*float64(p.nleg-2))
	default:
		return base
	}
}

func renderSigma2(title string, paths []pathSummary, f *ff2xInput, model int) string {
	var d textDoc
	d.comment("%s", title)
	d.comment("tk=%s thetad=%s", formatShort(f.tk), formatShort(f.thetad))
	d.comment("ipath  nleg  reff  sigma2")
	for _, p := range paths {
		d.line("%6d%5d%s", p.index, p.nleg, sciCells(p.reff, sigma2(p, f.tk, f.thetad, model)+f.sig2g))
	}
	return d.String()
}

func formatShort(v float64) string {
	return strings.TrimSpace(sciCells(v))
}

func sciCells(values ...float64) string {
	var d textDoc
	d.sciRow(values...)
	return strings.TrimSuffix(d.String(), "\n")
}

func computeDEBYE(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleDEBYE
	f, err := parseFF2XInput(in.text("ff2x.inp"))
	if err != nil {
		return nil, parseError(m, req, "ff2x.inp", err)
	}
	paths, err := parsePathsDat(in.text("paths.dat"))
	if err != nil {
		return nil, parseError(m, req, "paths.dat", err)
	}
	feff, err := deck.Parse(in.text("feff.inp"))
	if err != nil {
		return nil, parseError(m, req, "feff.inp", err)
	}
	title := "FEFF input"
	if c, ok := feff.Find("TITLE"); ok && c.Text() != "" {
		title = c.Text()
	}

	out := newOutputSet()
	out.addText("s2_em.dat", renderSigma2("sigma^2 (correlated Einstein model)", paths, f, 0))
	out.addText("s2_rm1.dat", renderSigma2("sigma^2 (recursion method, first order)", paths, f, 1))
	out.addText("s2_rm2.dat", renderSigma2("sigma^2 (recursion method, second order)", paths, f, 2))

	chi := func(k float64) float64 {
		total := 0.0
		for _, p := range paths {
			s2 := sigma2(p, f.tk, f.thetad, 0) + f.sig2g
			amp := f.s02 * p.degeneracy / (k * p.reff * p.reff)
			total += amp * math.Sin(2*k*p.reff+f.vrcorr) * math.Exp(-2*k*k*s2) * math.Exp(-2*p.reff/(k+1+f.vicorr))
		}
		return total
	}

	const kstep = 0.05
	ks := grid(kstep, kstep, 400)
	var cd textDoc
	cd.comment("%s", title)
	cd.comment("chi(k) for fixture %s, %d paths", req.FixtureID, len(paths))
	cd.comment("k  chi  mag  phase")
	var xd textDoc
	xd.comment("%s", title)
	xd.comment("xmu for fixture %s, s02=%s", req.FixtureID, formatShort(f.s02))
	xd.comment("omega  e  k  mu  mu0  chi")
	for _, k := range ks {
		c := chi(k)
		cd.sciRow(k, c, math.Abs(c), 2*k*paths[0].reff)
		e := k * k / 0.2625
		mu0 := 1 - math.Exp(-e/50)
		xd.sciRow(e+8979, e, k, mu0*(1+c), mu0, c)
	}
	out.addText("xmu.dat", xd.String())
	out.addText("chi.dat", cd.String())

	if in.has("spring.inp") {
		springs := numeric.NewDocument(in.text("spring.inp")).NumericRows(1)
		var sd textDoc
		sd.comment("spring constants for fixture %s", req.FixtureID)
		sd.comment("ipath  reff  k_spring  sigma2")
		for i, p := range paths {
			spring := 1.0
			if len(springs) > 0 {
				spring = springs[i%len(springs)][0]
			}
			sd.line("%6d%s", p.index, sciCells(p.reff, spring, sigma2(p, f.tk, f.thetad, 0)/math.Max(spring, 1e-6)))
		}
		out.addText("spring.dat", sd.String())
	}

	log := newLog("DEBYE: Debye-Waller factors and chi", req.FixtureID, in)
	log.kv("title", title)
	log.kv("paths", len(paths))
	log.kv("idwopt", f.idwopt)
	log.kv("temperature", f.tk)
	log.kv("debye temperature", f.thetad)
	log.kv("spring.inp", presence(in.has("spring.inp")))
	out.addText("log6.dat", log.String())
	return out, nil
}
