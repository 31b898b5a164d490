// Package pitch estimates the dominant perceptual frequency of a spectrum.
package pitch

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

// Perceptual weights. They bias the argmax away from rumble and hiss.
const (
	subBassHz     = 100.0
	lowMidHz      = 250.0
	presenceMaxHz = 3000.0

	subBassWeight  = 0.1
	lowMidWeight   = 0.5
	midBandWeight  = 1.2
	highBandWeight = 0.6

	// minDenominator guards the parabolic fit against flat neighbourhoods.
	minDenominator = 1e-12
)

// Weight returns the perceptual weight applied to a bin at hz.
func Weight(hz float64) float64 {
	switch {
	case hz < subBassHz:
		return subBassWeight
	case hz < lowMidHz:
		return lowMidWeight
	case hz <= presenceMaxHz:
		return midBandWeight
	default:
		return highBandWeight
	}
}

// Peak describes the dominant peak of a spectrum.
type Peak struct {
	Bin       int
	Hz        float64
	Magnitude float64
	Refined   bool
}

// Estimate returns the dominant frequency in Hz, or 0 when none is found.
func Estimate(spec *spectrum.Spectrum) float64 {
	return FindPeak(spec).Hz
}

// FindPeak locates the weighted argmax and refines it with parabolic
// interpolation on the raw magnitudes.
func FindPeak(spec *spectrum.Spectrum) Peak {
	if spec == nil || spec.Len() == 0 || !(spec.BinWidth > 0) {
		return Peak{}
	}

	weighted := make([]float64, spec.Len())
	for i, m := range spec.Magnitudes {
		weighted[i] = m * Weight(spec.Frequency(i))
	}

	idx := floats.MaxIdx(weighted)
	if !(weighted[idx] > 0) {
		return Peak{}
	}

	m := spec.Magnitudes
	peak := Peak{
		Bin:       idx,
		Hz:        spec.Frequency(idx),
		Magnitude: m[idx],
	}

	if idx > 0 && idx < len(m)-1 {
		if delta, ok := parabolicOffset(m[idx-1], m[idx], m[idx+1]); ok {
			peak.Hz = (float64(idx) + delta) * spec.BinWidth
			peak.Refined = true
		}
	}

	if math.IsNaN(peak.Hz) || math.IsInf(peak.Hz, 0) || peak.Hz < 0 {
		return Peak{}
	}
	return peak
}

// parabolicOffset returns the vertex offset of the parabola through three
// equally spaced points, in bins relative to the centre.
func parabolicOffset(left, centre, right float64) (float64, bool) {
	denom := left - 2*centre + right
	if math.Abs(denom) < minDenominator {
		return 0, false
	}
	delta := 0.5 * (left - right) / denom
	if math.IsNaN(delta) || math.IsInf(delta, 0) || math.Abs(delta) > 1 {
		return 0, false
	}
	return delta, true
}
