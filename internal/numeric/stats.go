package numeric

import "math"

// Summary holds simple statistics over a value sequence.
type Summary struct {
	Count int
	Sum   float64
	Mean  float64
	RMS   float64
	Min   float64
	Max   float64
}

// Summarize computes statistics over the finite values in vals.
func Summarize(vals []float64) Summary {
	var s Summary
	sumSq := 0.0
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if s.Count == 0 || v < s.Min {
			s.Min = v
		}
		if s.Count == 0 || v > s.Max {
			s.Max = v
		}
		s.Count++
		s.Sum += v
		sumSq += v * v
	}
	if s.Count > 0 {
		s.Mean = s.Sum / float64(s.Count)
		s.RMS = math.Sqrt(sumSq / float64(s.Count))
	}
	return s
}
