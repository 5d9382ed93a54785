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
		module: core.ModuleBAND,
		contract: staticContract(Contract{
			RequiredInputs:  []string{"band.inp", "geom.dat", "global.inp", "phase.bin"},
			ExpectedOutputs: []string{"bandstructure.dat", "logband.dat"},
		}),
		compute: computeBAND,
	})
}

type bandInput struct {
	mband    int
	emin     float64
	emax     float64
	estep    float64
	nkp      int
	ikpath   int
	freeprop bool
}

func parseBandInput(text string) (*bandInput, error) {
	doc := numeric.NewDocument(text)
	mband, err := doc.IntsAfter("mband", 1)
	if err != nil {
		return nil, err
	}
	mesh, err := doc.ValuesAfter("emin, emax, estep", 3)
	if err != nil {
		return nil, err
	}
	nkp, err := doc.IntsAfter("nkp", 1)
	if err != nil {
		return nil, err
	}
	b := &bandInput{mband: mband[0], emin: mesh[0], emax: mesh[1], estep: mesh[2], nkp: nkp[0], ikpath: -1}
	if doc.HasMarker("ikpath") {
		v, err := doc.IntsAfter("ikpath", 1)
		if err != nil {
			return nil, err
		}
		b.ikpath = v[0]
	}
	if doc.HasMarker("freeprop") {
		if b.freeprop, err = doc.BoolAfter("freeprop"); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func computeBAND(req core.ComputeRequest, in *inputSet) (*outputSet, error) {
	m := core.ModuleBAND
	b, err := parseBandInput(in.text("band.inp"))
	if err != nil {
		return nil, parseError(m, req, "band.inp", err)
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

	emin, emax, estep := b.emin, b.emax, b.estep
	if emin == 0 && emax == 0 {
		emin, emax = -8, 6
	}
	if emax < emin {
		emin, emax = emax, emin
	}
	if estep <= 0 {
		estep = 0.05
	}
	nkp := b.nkp
	if nkp <= 0 {
		nkp = 50
	}
	nkp = clampInt(nkp, 2, 400)

	shells := geom.Shells()
	nbands := clampInt(len(shells)+int(phase.Channels), 2, 12)
	seed := seedSource{sum: in.checksum()}
	span := emax - emin

	var d textDoc
	d.comment("BAND structure for fixture %s", req.FixtureID)
	d.comment("mband=%d nkp=%d ikpath=%d freeprop=%s", b.mband, nkp, b.ikpath, fortranBool(b.freeprop))
	d.comment("emin=%s emax=%s estep=%s", artifact.FormatFixed(emin, 0, 3), artifact.FormatFixed(emax, 0, 3), artifact.FormatFixed(estep, 0, 4))
	header := "ik  k"
	for n := 1; n <= nbands; n++ {
		header += fmt.Sprintf("  E%d", n)
	}
	d.comment("%s", header)

	for ik := 0; ik < nkp; ik++ {
		kf := float64(ik) / float64(nkp-1)
		row := []float64{kf}
		for n := 0; n < nbands; n++ {
			center := emin + span*(float64(n)+0.5)/float64(nbands)
			width := span / float64(nbands) * (0.3 + 0.4*seed.frac(uint(n)))
			if b.freeprop {
				row = append(row, emin+span*math.Min(1, kf*kf*float64(n+1)/float64(nbands)))
				continue
			}
			e := center + width*math.Cos(math.Pi*kf*float64(n+1)+phase.BasePhase)
			row = append(row, math.Round(e/estep)*estep)
		}
		d.raw(fmt.Sprintf("%5d", ik+1))
		d.sciRow(row...)
	}

	log := newLog("BAND: band structure", req.FixtureID, in)
	log.kv("bands", nbands)
	log.kv("k points", nkp)
	log.kv("shells", len(shells))
	log.kv("energy window", fmt.Sprintf("%s..%s", artifact.FormatFixed(emin, 0, 3), artifact.FormatFixed(emax, 0, 3)))
	log.kv("phase.bin", binaryKind(phase.Legacy, "phase"))

	out := newOutputSet()
	out.addText("bandstructure.dat", d.String())
	out.addText("logband.dat", log.String())
	return out, nil
}
