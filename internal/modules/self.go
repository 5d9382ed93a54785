package modules

import (
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

var selfOutputs = []string{
	"selfenergy.dat", "sigma.dat", "specfunct.dat", "logsfconv.dat", "sig2FEFF.dat", "mpse.dat", "opconsCu.dat",
}

var (
	selfSpectra   = []string{"xmu.dat", "chi.dat", "loss.dat"}
	feffPathFiles = regexp.MustCompile(`^feff\d{4}\.dat$`)
)

func init() {
	Register(&stage{
		module:   core.ModuleSELF,
		contract: selfContract,
		compute:  computeSELF,
	})
}

// stagedSpectra lists the spectrum files present next to sfconv.inp:
// xmu.dat, chi.dat and loss.dat first, then feffNNNN.dat in name order.
func stagedSpectra(dir string) ([]string, error) {
	var found []string
	for _, name := range selfSpectra {
		if artifact.Exists(filepath.Join(dir, name)) {
			found = append(found, name)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && feffPathFiles.MatchString(e.Name()) {
			paths = append(paths, e.Name())
		}
	}
	sort.Strings(paths)
	return append(found, paths...), nil
}

func selfContract(req core.ComputeRequest) (Contract, error) {
	m := core.ModuleSELF
	spectra, err := stagedSpectra(req.InputDir())
	if err != nil {
		return Contract{}, core.IOError(placeholder(m, "INPUT_READ"),
			"failed to list %s inputs in '%s': %v", m, req.InputDir(), err)
	}
	if len(spectra) == 0 {
		return Contract{}, core.IOError(placeholder(m, "INPUT_READ"),
			"fixture '%s' is missing required %s spectrum input (xmu.dat, chi.dat, loss.dat or feffNNNN.dat) in '%s'",
			req.FixtureID, m, req.InputDir())
	}
	return Contract{
		RequiredInputs:  append([]string{"sfconv.inp"}, spectra...),
		OptionalInputs:  []string{"exc.dat"},
		ExpectedOutputs: append(append([]string(nil), selfOutputs...), spectra...),
	}, nil
}

type sfconvInput struct {
	msfconv int
	ipse    int
	ipsk    int
	wsigk   float64
	cen     float64
	ispec   int
	ipr6    int
}

func parseSFConvInput(text string) (*sfconvInput, error) {
	doc := numeric.NewDocument(text)
	flags, err := doc.IntsAfter("msfconv, ipse", 3)
	if err != nil {
		return nil, err
	}
	w, err := doc.ValuesAfter("wsigk, cen", 2)
	if err != nil {
		return nil, err
	}
	spectral, err := doc.IntsAfter("ispec, ipr6", 2)
	if err != nil {
		return nil, err
	}
	return &sfconvInput{
		msfconv: flags[0], ipse: flags[1], ipsk: flags[2],
		wsigk: w[0], cen: w[1],
		ispec: spectral[0], ipr6: spectral[1],
	}, nil
}

// plasmonPole is the single-pole self-energy model used by SELF.
type plasmonPole struct {
	omega float64
	gamma float64
	shift float64
}

func (p plasmonPole) sigma(e float64) complex128 {
	d := e - p.omega
	den := d*d + p.gamma*p.gamma
	return complex(p.shift+p.omega*d/den*0.1, -p.omega*p.gamma/den*0.1)
}

// convolveSpectrum broadens every data column of a spectrum file with a
// Lorentzian of half-width gamma, measured in rows. Header and comment lines
// are kept verbatim.
func convolveSpectrum(text string, gamma float64) string {
	lines := numeric.SplitLines(text)
	type dataRow struct {
		line int
		vals []float64
	}
	var rows []dataRow
	for i, line := range lines {
		if numeric.IsComment(line, numeric.DefaultCommentPrefixes) {
			continue
		}
		if vals := numeric.ParseLine(line); len(vals) >= 2 {
			rows = append(rows, dataRow{line: i, vals: vals})
		}
	}
	out := make([]string, len(lines))
	copy(out, lines)
	const window = 3
	for i, r := range rows {
		smoothed := append([]float64(nil), r.vals...)
		for col := 1; col < len(r.vals); col++ {
			sum, norm := 0.0, 0.0
			for j := max(0, i-window); j <= min(len(rows)-1, i+window); j++ {
				if col >= len(rows[j].vals) {
					continue
				}
				w := lorentz(float64(j-i), 0, gamma)
				sum += w * rows[j].vals[col]
				norm += w
			}
			if norm > 0 {
				smoothed[col] = sum / norm
			}
		}
		var d textDoc
		d.sciRow(smoothed...)
		out[r.line] = strings.TrimSuffix(d.String(), "\n")
	}
	var d textDoc
	for _, line := range out {
		d.line("%s", line)
	}
	return d.String()
}

func computeSELF(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleSELF
	sf, err := parseSFConvInput(in.text("sfconv.inp"))
	if err != nil {
		return nil, parseError(m, req, "sfconv.inp", err)
	}
	seed := seedSource{sum: in.checksum()}
	pole := plasmonPole{
		omega: seed.between(0, 10, 30),
		gamma: seed.between(1, 0.5, 3),
		shift: sf.cen,
	}
	if in.has("exc.dat") {
		if vals := numeric.ParseText(in.text("exc.dat"), numeric.DefaultCommentPrefixes); len(vals) > 0 {
			pole.omega = math.Max(1, math.Abs(numeric.Summarize(vals).Mean))
		}
	}
	energies := grid(-20, 0.5, 121)

	var se, sg, spf, mp textDoc
	se.comment("self-energy for fixture %s", req.FixtureID)
	se.comment("energy  re_sigma  im_sigma")
	sg.comment("sigma(E) on the spectrum grid for fixture %s", req.FixtureID)
	sg.comment("energy  k  re_sigma  im_sigma  |sigma|")
	spf.comment("spectral function for fixture %s", req.FixtureID)
	spf.comment("energy  A(E)")
	mp.comment("many-pole self-energy for fixture %s", req.FixtureID)
	mp.comment("pole  omega  weight")
	for _, e := range energies {
		s := pole.sigma(e)
		se.sciRow(e, real(s), imag(s))
		k := math.Sqrt(math.Max(e+20, 0) * 0.2625)
		sg.sciRow(e, k, real(s), imag(s), math.Hypot(real(s), imag(s)))
		spf.sciRow(e, -imag(s)/math.Pi/(math.Pow(e-real(s), 2)+imag(s)*imag(s)+1e-6))
	}
	npoles := clampInt(sf.ipse+4, 4, 16)
	for i := 0; i < npoles; i++ {
		mp.line("%5d%s%s", i+1, artifact.FormatScientificPadded(pole.omega*float64(i+1)/float64(npoles), 16, 7),
			artifact.FormatScientificPadded(1/float64(npoles), 16, 7))
	}

	var s2 textDoc
	s2.comment("sigma^2 broadening per spectrum for fixture %s", req.FixtureID)
	var op textDoc
	op.comment("optical constants (loss model) for fixture %s", req.FixtureID)
	op.comment("omega  eps1  eps2  loss")
	for _, w := range grid(0.5, 0.5, 100) {
		eps := 1 - complex(pole.omega*pole.omega, 0)/complex(w*w, w*pole.gamma)
		loss := -imag(1 / eps)
		op.sciRow(w, real(eps), imag(eps), loss)
	}

	out := newOutputSet()
	gamma := math.Max(sf.wsigk, pole.gamma)
	spectra := in.order[1:]
	if in.has("exc.dat") {
		spectra = spectra[:len(spectra)-1]
	}
	for i, name := range spectra {
		s2.line(" %-16s%s", name, artifact.FormatScientificPadded(gamma*float64(i+1)/float64(len(spectra)), 16, 7))
	}

	log := newLog("SELF: self-energy convolution", req.FixtureID, in)
	log.kv("msfconv", sf.msfconv)
	log.kv("ipse", sf.ipse)
	log.kv("ispec", sf.ispec)
	log.kv("plasmon energy", pole.omega)
	log.kv("broadening", gamma)
	log.kv("spectra", len(spectra))

	out.addText("selfenergy.dat", se.String())
	out.addText("sigma.dat", sg.String())
	out.addText("specfunct.dat", spf.String())
	out.addText("logsfconv.dat", log.String())
	out.addText("sig2FEFF.dat", s2.String())
	out.addText("mpse.dat", mp.String())
	out.addText("opconsCu.dat", op.String())
	for _, name := range spectra {
		out.addText(name, convolveSpectrum(in.text(name), gamma))
	}
	return out, nil
}
