package modules

import (
	"fmt"
	"math"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
	"github.com/leapstack-labs/feffcheck/internal/core"
	"github.com/leapstack-labs/feffcheck/internal/numeric"
)

func init() {
	Register(&stage{
		module: core.ModuleEELS,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"eels.inp", "xmu.dat"},
			OptionalInputs:  []string{"magic.inp"},
			ExpectedOutputs: []string{"eels.dat", "logeels.dat"},
			OptionalOutputs: []string{"magic.dat"},
		}),
		compute: computeEELS,
	})
}

type eelsInput struct {
	elnes       int
	beamEnergy  float64
	collection  float64
	convergence float64
	qmesh       [2]int
	magic       int
	magicEnergy float64
}

func parseEELSInput(text string) (*eelsInput, error) {
	doc := numeric.NewDocument(text)
	elnes, err := doc.IntsAfter("calculate ELNES?", 1)
	if err != nil {
		return nil, err
	}
	beam, err := doc.ValuesAfter("beam energy", 1)
	if err != nil {
		return nil, err
	}
	angles, err := doc.ValuesAfter("convergence semiangle", 2)
	if err != nil {
		return nil, err
	}
	q, err := doc.IntsAfter("qmesh", 2)
	if err != nil {
		return nil, err
	}
	e := &eelsInput{
		elnes:       elnes[0],
		beamEnergy:  beam[0],
		collection:  angles[0],
		convergence: angles[1],
		qmesh:       [2]int{q[0], q[1]},
	}
	if v, err := doc.IntsAfter("calculate magic angle", 1); err == nil {
		e.magic = v[0]
	}
	if v, err := doc.ValuesAfter("energy for magic angle", 1); err == nil {
		e.magicEnergy = v[0]
	}
	if e.beamEnergy <= 0 {
		return nil, fmt.Errorf("beam energy must be positive, got %g", e.beamEnergy)
	}
	return e, nil
}

// spectrumPoint is one (energy, mu) sample of an xmu.dat table.
type spectrumPoint struct {
	energy float64
	mu     float64
}

// readSpectrum extracts energy and mu from an xmu.dat table. Six-column
// rows carry mu in the fourth column, shorter rows in the second.
func readSpectrum(text string) ([]spectrumPoint, error) {
	var pts []spectrumPoint
	for _, row := range numeric.NewDocument(text).NumericRows(2) {
		mu := row[1]
		if len(row) >= 4 {
			mu = row[3]
		}
		pts = append(pts, spectrumPoint{energy: row[0], mu: mu})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no spectrum rows")
	}
	return pts, nil
}

// characteristicAngle returns theta_E in mrad for an energy loss at the given
// beam energy in eV.
func characteristicAngle(loss, beam float64) float64 {
	const mc2 = 511e3
	gamma := 1 + beam/mc2
	beta2 := 1 - 1/(gamma*gamma)
	return 1e3 * loss / (gamma * beta2 * 2 * beam / (1 + gamma))
}

func computeEELS(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleEELS
	e, err := parseEELSInput(in.text("eels.inp"))
	if err != nil {
		return nil, parseError(m, req, "eels.inp", err)
	}
	spectrum, err := readSpectrum(in.text("xmu.dat"))
	if err != nil {
		return nil, parseError(m, req, "xmu.dat", err)
	}
	edge := spectrum[0].energy

	var d textDoc
	d.comment("EELS for fixture %s, beam energy %s eV", req.FixtureID, artifact.FormatFixed(e.beamEnergy, 0, 1))
	d.comment("energy  total  q_x  q_y  q_z")
	collection := math.Max(e.collection, 1e-4)
	for _, p := range spectrum {
		thetaE := characteristicAngle(math.Max(p.energy-edge, 0)+1, e.beamEnergy) / 1e3
		weight := math.Log(1 + (collection*collection)/(thetaE*thetaE))
		par := p.mu * weight / 3
		perp := p.mu * weight / 3 * (1 + 0.1*float64(e.qmesh[1])/float64(max(e.qmesh[0], 1)))
		d.sciRow(p.energy, par+2*perp, perp, perp, par)
	}

	out := newOutputSet()
	out.addText("eels.dat", d.String())

	if in.has("magic.inp") {
		var md textDoc
		md.comment("magic angle for fixture %s", req.FixtureID)
		md.comment("energy_loss  magic_angle(mrad)")
		for _, p := range spectrum {
			loss := math.Max(p.energy-edge, 0) + math.Max(e.magicEnergy, 1)
			md.sciRow(loss, 4*characteristicAngle(loss, e.beamEnergy)/math.Sqrt(3))
		}
		out.addText("magic.dat", md.String())
	}

	log := newLog("EELS: electron energy loss spectrum", req.FixtureID, in)
	log.kv("ELNES", e.elnes)
	log.kv("beam energy", e.beamEnergy)
	log.kv("collection semiangle", e.collection)
	log.kv("spectrum points", len(spectrum))
	log.kv("magic.inp", presence(in.has("magic.inp")))
	out.addText("logeels.dat", log.String())
	return out, nil
}
