package modules

import (
	"fmt"
	"math"
	"strings"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleDMDW,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"dmdw.inp", "feff.dym"},
			ExpectedOutputs: []string{"dmdw.out"},
		}),
		compute: computeDMDW,
	})
}

type dmdwInput struct {
	mode         int
	order        int
	temperatures []float64
	paths        [][2]int
}

// dmdwRows returns the numeric rows of dmdw.inp with trailing "!" comments
// removed.
func dmdwRows(text string) [][]float64 {
	var rows [][]float64
	for _, line := range numeric.SplitLines(text) {
		if i := strings.Index(line, "!"); i >= 0 {
			line = line[:i]
		}
		if vals := numeric.ParseLine(line); len(vals) > 0 {
			rows = append(rows, vals)
		}
	}
	return rows
}

func parseDMDWInput(text string) (*dmdwInput, error) {
	rows := dmdwRows(text)
	if len(rows) < 5 {
		return nil, fmt.Errorf("expected at least 5 records, found %d", len(rows))
	}
	ints := make([]int, 3)
	for i := range ints {
		n, err := numeric.ToInt(rows[i][0])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		ints[i] = n
	}
	d := &dmdwInput{mode: ints[0], order: ints[1]}
	ntemp := ints[2]
	if ntemp < 1 {
		return nil, fmt.Errorf("number of temperatures must be positive, got %d", ntemp)
	}
	d.temperatures = rows[3]
	if len(d.temperatures) < ntemp {
		return nil, fmt.Errorf("expected %d temperatures, found %d", ntemp, len(d.temperatures))
	}
	d.temperatures = d.temperatures[:ntemp]

	npath, err := numeric.ToInt(rows[4][0])
	if err != nil {
		return nil, fmt.Errorf("path count: %w", err)
	}
	if len(rows) < 5+npath {
		return nil, fmt.Errorf("expected %d atom pairs, found %d", npath, len(rows)-5)
	}
	for i := 0; i < npath; i++ {
		row := rows[5+i]
		if len(row) < 2 {
			return nil, fmt.Errorf("atom pair %d needs two indices", i+1)
		}
		a, err := numeric.ToInt(row[0])
		if err != nil {
			return nil, err
		}
		b, err := numeric.ToInt(row[1])
		if err != nil {
			return nil, err
		}
		d.paths = append(d.paths, [2]int{a, b})
	}
	return d, nil
}

func computeDMDW(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleDMDW
	d, err := parseDMDWInput(in.text("dmdw.inp"))
	if err != nil {
		return nil, parseError(m, req, "dmdw.inp", err)
	}
	dym := in.bytes("feff.dym")
	if len(dym) == 0 {
		return nil, parseError(m, req, "feff.dym", fmt.Errorf("dynamical matrix is empty"))
	}

	// Frequencies are spread over the Lanczos order from the matrix checksum.
	seed := seedSource{sum: artifact.Checksum(dym)}
	order := clampInt(d.order, 1, 64)
	freqs := make([]float64, order)
	for i := range freqs {
		freqs[i] = seed.between(uint(i), 5, 40) * float64(i+1) / float64(order)
	}

	var doc textDoc
	doc.line(" DMDW: Debye-Waller factors from the dynamical matrix")
	doc.line(" fixture: %s", req.FixtureID)
	doc.line(" mode: %d  lanczos order: %d  feff.dym: %d bytes", d.mode, order, len(dym))
	doc.line(" %8s %8s %12s %16s", "atom_i", "atom_j", "T(K)", "sigma2(A^2)")
	for _, pair := range d.paths {
		for _, t := range d.temperatures {
			s2 := 0.0
			for i, w := range freqs {
				x := w / (2 * math.Max(t, 1) * 0.0862)
				s2 += 1 / (w * math.Tanh(x)) / float64(i+1)
			}
			s2 *= 0.01 * float64(1+abs(pair[1]-pair[0])) / float64(order)
			doc.line(" %8d %8d %s %s", pair[0], pair[1],
				artifact.FormatFixed(t, 12, 2), artifact.FormatScientificPadded(s2, 16, 7))
		}
	}

	out := newOutputSet()
	out.addText("dmdw.out", doc.String())
	return out, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
