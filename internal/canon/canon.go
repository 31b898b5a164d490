// Package canon holds the canonical reference frequency table and the
// octave-invariant classifier that maps detected pitches onto it.
package canon

import (
	"math"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

// Frequency is one canonical reference frequency.
type Frequency struct {
	Hz          float64     `json:"hz"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tier        safety.Tier `json:"tier"`
}

// DefaultIndex is the entry returned when nothing was detected.
const DefaultIndex = 0

// Order matters: ties resolve to the earlier entry.
var table = buildTable([]Frequency{
	{Hz: 174, Name: "Foundation", Description: "Lowest solfeggio tone"},
	{Hz: 285, Name: "Restoration"},
	{Hz: 396, Name: "UT", Description: "Liberation"},
	{Hz: 417, Name: "RE", Description: "Change"},
	{Hz: 432, Name: "Verdi A", Description: "Alternative concert pitch"},
	{Hz: 528, Name: "MI", Description: "Transformation"},
	{Hz: 639, Name: "FA", Description: "Connection"},
	{Hz: 741, Name: "SOL", Description: "Expression"},
	{Hz: 852, Name: "LA", Description: "Intuition"},
	{Hz: 963, Name: "SI", Description: "Crown"},
	{Hz: 1074, Name: "Extended 1074"},
	{Hz: 1185, Name: "Extended 1185"},
	{Hz: 1296, Name: "Extended 1296"},
	{Hz: 1407, Name: "Extended 1407"},
	{Hz: 1518, Name: "Extended 1518"},
	{Hz: 1629, Name: "Extended 1629"},
	{Hz: 1740, Name: "Extended 1740"},
	{Hz: 1851, Name: "Extended 1851"},
	{Hz: 1962, Name: "Extended 1962"},
	{Hz: 2220, Name: "Pattern 2220"},
	{Hz: 3333, Name: "Pattern 3333"},
	{Hz: 4444, Name: "Pattern 4444"},
})

// octaveFactors are the multipliers compared against for each entry.
var octaveFactors = [...]float64{1, 0.5, 2, 0.25, 4}

func buildTable(entries []Frequency) []Frequency {
	for i := range entries {
		entries[i].Tier = safety.Classify(entries[i].Hz)
	}
	return entries
}

// Table returns a copy of the canonical table in tie-break order.
func Table() []Frequency {
	out := make([]Frequency, len(table))
	copy(out, table)
	return out
}

// Default returns the fallback entry used when no pitch was detected.
func Default() Frequency {
	return table[DefaultIndex]
}

// Lookup returns the entry with exactly hz, if any.
func Lookup(hz float64) (Frequency, bool) {
	for _, f := range table {
		if f.Hz == hz {
			return f, true
		}
	}
	return Frequency{}, false
}

// Match is a classification result.
type Match struct {
	Frequency Frequency `json:"frequency"`
	// DistanceHz is the octave-folded distance to the winning entry.
	DistanceHz float64 `json:"distanceHz"`
	// OctaveFactor is the multiplier of the entry that matched (1, 0.5, 2, 0.25 or 4).
	OctaveFactor float64 `json:"octaveFactor"`
	// Fallback is set when the default entry was returned without searching.
	Fallback bool `json:"fallback"`
}

// Classify returns the canonical entry with the smallest octave-folded
// distance to hz.
func Classify(hz float64) Frequency {
	return ClassifyMatch(hz).Frequency
}

// ClassifyMatch is Classify with the distance details.
func ClassifyMatch(hz float64) Match {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return Match{Frequency: Default(), OctaveFactor: 1, Fallback: true}
	}

	best := Match{DistanceHz: math.Inf(1)}
	for _, entry := range table {
		dist, factor := OctaveDistance(hz, entry.Hz)
		// Strict less-than keeps the first listed entry on ties.
		if dist < best.DistanceHz {
			best = Match{Frequency: entry, DistanceHz: dist, OctaveFactor: factor}
		}
	}
	return best
}

// OctaveDistance returns min |hz - c*k| over the octave factors k, and the
// factor that achieved it.
func OctaveDistance(hz, c float64) (float64, float64) {
	best, factor := math.Inf(1), 1.0
	for _, k := range octaveFactors {
		if d := math.Abs(hz - c*k); d < best {
			best, factor = d, k
		}
	}
	return best, factor
}
