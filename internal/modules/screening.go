package modules

import (
	"math"

	"github.com/leapstack-labs/feffcheck/internal/artifact"
)

// screenedInteraction describes a radial screened Coulomb interaction
// written to wscrn.dat by both CRPA and SCREEN.
type screenedInteraction struct {
	rmax     float64
	points   int
	charge   float64
	lambda   float64
	damping  float64
	lchannel int
}

// render writes the r, Re W, Im W table.
func (s screenedInteraction) render(title string) string {
	var d textDoc
	d.comment("%s", title)
	d.comment("rmax=%s points=%d l=%d lambda=%s", artifact.FormatFixed(s.rmax, 0, 4), s.points,
		s.lchannel, artifact.FormatFixed(s.lambda, 0, 5))
	d.comment("r  w_real  w_imag")
	step := s.rmax / float64(s.points)
	for i := 1; i <= s.points; i++ {
		r := step * float64(i)
		re := -s.charge / r * math.Exp(-r/s.lambda)
		im := s.damping * math.Exp(-r/s.lambda) * math.Sin(float64(s.lchannel+1)*r)
		d.sciRow(r, re, im)
	}
	return d.String()
}
