// Package fractal estimates a coarse box-counting dimension of a
// log-magnitude spectrum. The value is descriptive only.
package fractal

import (
	"math"

	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

const (
	// logFloor avoids log(0) on silent bins.
	logFloor = 1e-10
	// activeThreshold is the deviation (in natural-log units) that marks a
	// box as active.
	activeThreshold = 0.1

	// MinDimension is returned for empty or featureless spectra.
	MinDimension = 1.0
	// MaxDimension caps the estimate.
	MaxDimension = 3.0
)

// Scales are the box widths in bins.
var Scales = [...]int{2, 4, 8, 16, 32}

// Dimension returns the box-counting dimension of spec, clamped to [1,3].
func Dimension(spec *spectrum.Spectrum) float64 {
	if spec == nil {
		return MinDimension
	}
	return DimensionOf(spec.Magnitudes)
}

// DimensionOf is Dimension over raw magnitudes. Each scale contributes
// ln(count)/ln(n/s); the mean is offset by MinDimension so a flat curve
// reads 1, then clamped to [MinDimension, MaxDimension].
func DimensionOf(magnitudes []float64) float64 {
	n := len(magnitudes)
	if n < 2 {
		return MinDimension
	}

	logs := make([]float64, n)
	for i, m := range magnitudes {
		if !(m > logFloor) {
			m = logFloor
		}
		logs[i] = math.Log(m)
	}

	var sum float64
	var used int
	for _, s := range Scales {
		if s >= n {
			continue
		}
		count := activeBoxes(logs, s)
		if count == 0 {
			continue
		}
		// scale is the box width as a fraction of the spectrum.
		scale := float64(s) / float64(n)
		sum += math.Log(float64(count)) / math.Log(1/scale)
		used++
	}
	if used == 0 {
		return MinDimension
	}

	return clamp(MinDimension + sum/float64(used))
}

// activeBoxes counts boxes of width s where any value deviates from the
// box's first value by more than activeThreshold.
func activeBoxes(values []float64, s int) int {
	count := 0
	for start := 0; start < len(values); start += s {
		end := start + s
		if end > len(values) {
			end = len(values)
		}
		first := values[start]
		for _, v := range values[start+1 : end] {
			if math.Abs(v-first) > activeThreshold {
				count++
				break
			}
		}
	}
	return count
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < MinDimension:
		return MinDimension
	case v > MaxDimension:
		return MaxDimension
	default:
		return v
	}
}
