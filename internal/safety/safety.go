// Package safety classifies frequencies into intensity tiers and derives a
// recommended playback volume for each.
package safety

import (
	"math"
	"sort"
)

// Tier is an ordered safety classification. Higher tiers are more intense.
type Tier int

const (
	// TierSafe covers everything up to SafeMaxHz, played at full volume.
	TierSafe Tier = iota
	// TierCaution is attenuated gently.
	TierCaution
	// TierExpert is attenuated and triggers notifications by default.
	TierExpert
	// TierResearch is above ExpertMaxHz and always urgent.
	TierResearch
)

// Upper bounds (inclusive) of the lower three tiers in Hz.
const (
	SafeMaxHz    = 1000.0
	CautionMaxHz = 1500.0
	ExpertMaxHz  = 3000.0
)

// String returns the string representation of the tier
func (t Tier) String() string {
	switch t {
	case TierCaution:
		return "CAUTION"
	case TierExpert:
		return "EXPERT"
	case TierResearch:
		return "RESEARCH"
	default:
		return "SAFE"
	}
}

// ParseTier parses a string into a Tier. Unknown values map to TierSafe.
func ParseTier(s string) Tier {
	switch s {
	case "CAUTION", "caution":
		return TierCaution
	case "EXPERT", "expert":
		return TierExpert
	case "RESEARCH", "research":
		return TierResearch
	default:
		return TierSafe
	}
}

// MarshalText implements encoding.TextMarshaler so tiers serialize by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	*t = ParseTier(string(text))
	return nil
}

// ControlPoint is one (frequency, volume) pair of the volume curve.
type ControlPoint struct {
	Hz     float64
	Volume float64
}

// volumeCurve must stay sorted by Hz with non-increasing volume.
var volumeCurve = [...]ControlPoint{
	{1000, 1.00},
	{1074, 0.80},
	{1500, 0.60},
	{2000, 0.45},
	{3000, 0.30},
	{5000, 0.20},
	{10000, 0.10},
	{20000, 0.05},
}

// Curve returns a copy of the volume control points.
func Curve() []ControlPoint {
	out := make([]ControlPoint, len(volumeCurve))
	copy(out, volumeCurve[:])
	return out
}

// Assessment is the safety verdict for a single frequency.
type Assessment struct {
	Hz                float64 `json:"hz"`
	Tier              Tier    `json:"tier"`
	RecommendedVolume float64 `json:"recommendedVolume"`
}

// Assess returns the tier and recommended volume for hz.
func Assess(hz float64) Assessment {
	hz = sanitize(hz)
	return Assessment{
		Hz:                hz,
		Tier:              Classify(hz),
		RecommendedVolume: RecommendedVolume(hz),
	}
}

// Classify returns the tier for hz. Boundaries belong to the lower tier.
func Classify(hz float64) Tier {
	hz = sanitize(hz)
	switch {
	case hz <= SafeMaxHz:
		return TierSafe
	case hz <= CautionMaxHz:
		return TierCaution
	case hz <= ExpertMaxHz:
		return TierExpert
	default:
		return TierResearch
	}
}

// RecommendedVolume interpolates the volume curve at hz.
func RecommendedVolume(hz float64) float64 {
	hz = sanitize(hz)
	if hz <= SafeMaxHz || hz < volumeCurve[0].Hz {
		return 1.0
	}

	last := volumeCurve[len(volumeCurve)-1]
	if hz >= last.Hz {
		return last.Volume
	}

	// First control point strictly above hz; i >= 1 because hz >= curve[0].
	i := sort.Search(len(volumeCurve), func(i int) bool {
		return volumeCurve[i].Hz > hz
	})
	lo, hi := volumeCurve[i-1], volumeCurve[i]
	t := (hz - lo.Hz) / (hi.Hz - lo.Hz)
	return lo.Volume + t*(hi.Volume-lo.Volume)
}

func sanitize(hz float64) float64 {
	if math.IsNaN(hz) || hz < 0 {
		return 0
	}
	return hz
}
