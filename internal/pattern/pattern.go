// Package pattern scores a spectrum against golden-ratio harmonics, the
// fixed 111-pattern series and a weighted resonance set.
package pattern

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

const (
	// goldenSteps candidates are generated, centred on goldenCentre.
	goldenSteps  = 7
	goldenCentre = 3

	// energyWeight applies to the energy series of the 111 pattern.
	energyWeight = 1.5
)

// Series111 is the primary fixed pattern: multiples of 111 Hz.
var Series111 = [...]float64{111, 222, 333, 444, 555, 666, 777, 888, 999}

// EnergySeries is the secondary, more heavily weighted pattern.
var EnergySeries = [...]float64{1111, 2222, 3333}

// WeightedFrequency is a resonance frequency with its weight.
type WeightedFrequency struct {
	Hz     float64
	Weight float64
}

// ResonanceSet is the curated weighted set for the resonance score.
var ResonanceSet = [...]WeightedFrequency{
	{528, 3},
	{432, 2},
	{639, 2},
	{741, 1.5},
	{174, 1},
	{285, 1},
	{396, 1},
	{417, 1},
	{852, 1},
	{963, 1},
}

// Scores are the three normalized pattern scores, each in [0,1].
type Scores struct {
	GoldenAlignment float64   `json:"goldenAlignment"`
	PatternPresence float64   `json:"patternPresence"`
	Resonance       float64   `json:"resonance"`
	HarmonicSeries  []float64 `json:"harmonicSeries"`
}

// Analyze computes all scores for spec around the dominant frequency.
func Analyze(spec *spectrum.Spectrum, dominantHz float64) Scores {
	return Scores{
		GoldenAlignment: GoldenAlignment(spec, dominantHz),
		PatternPresence: PatternPresence(spec),
		Resonance:       Resonance(spec),
		HarmonicSeries:  GoldenHarmonics(dominantHz),
	}
}

// GoldenHarmonics returns f*phi^(n-k) for n in [0, goldenSteps). It returns
// nil when f is not positive.
func GoldenHarmonics(f float64) []float64 {
	if !(f > 0) || math.IsInf(f, 0) {
		return nil
	}
	out := make([]float64, goldenSteps)
	for n := range out {
		out[n] = f * math.Pow(spectrum.Phi, float64(n-goldenCentre))
	}
	return out
}

// GoldenAlignment averages the relative magnitudes at the golden harmonics
// of f.
func GoldenAlignment(spec *spectrum.Spectrum, f float64) float64 {
	candidates := GoldenHarmonics(f)
	peak := peakMagnitude(spec)
	if len(candidates) == 0 || peak == 0 {
		return 0
	}

	var sum float64
	for _, hz := range candidates {
		sum += spec.MagnitudeAt(hz) / peak
	}
	return clamp01(sum / float64(len(candidates)))
}

// PatternPresence scores the 111 series plus the weighted energy series.
func PatternPresence(spec *spectrum.Spectrum) float64 {
	peak := peakMagnitude(spec)
	if peak == 0 {
		return 0
	}

	var sum float64
	for _, hz := range Series111 {
		sum += spec.MagnitudeAt(hz) / peak
	}
	for _, hz := range EnergySeries {
		sum += energyWeight * spec.MagnitudeAt(hz) / peak
	}
	return clamp01(sum / float64(len(Series111)+len(EnergySeries)))
}

// Resonance is the weighted mean relative magnitude over ResonanceSet.
func Resonance(spec *spectrum.Spectrum) float64 {
	peak := peakMagnitude(spec)
	if peak == 0 {
		return 0
	}

	var sum, total float64
	for _, wf := range ResonanceSet {
		sum += wf.Weight * spec.MagnitudeAt(wf.Hz) / peak
		total += wf.Weight
	}
	return clamp01(sum / total)
}

func peakMagnitude(spec *spectrum.Spectrum) float64 {
	if spec == nil || spec.Len() == 0 {
		return 0
	}
	peak := floats.Max(spec.Magnitudes)
	if !(peak > 0) || math.IsInf(peak, 0) {
		return 0
	}
	return peak
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
