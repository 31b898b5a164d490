package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/fractal"
	"github.com/austinkregel/local-media/resonanced/internal/pattern"
	"github.com/austinkregel/local-media/resonanced/internal/pitch"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/spectrum"
)

const (
	// ResultVersion is bumped whenever analysis output changes meaning.
	ResultVersion = 1

	// DefaultTimeout bounds a single analysis unit.
	DefaultTimeout = 60 * time.Second

	// weakPeakRatio flags peaks that barely stand above the spectrum mean.
	weakPeakRatio = 4.0
)

var (
	// ErrTimeout is returned when the host deadline expires mid-analysis.
	ErrTimeout = errors.New("analysis timed out")
	// ErrCanceled is returned when the host cancels the analysis.
	ErrCanceled = errors.New("analysis canceled")
)

// Result is the immutable output of one analysis call.
type Result struct {
	DetectedHz       float64           `json:"detectedHz"`
	Canonical        canon.Frequency   `json:"canonical"`
	CanonicalDistHz  float64           `json:"canonicalDistanceHz"`
	HarmonicSeries   []float64         `json:"harmonicSeries,omitempty"`
	GoldenAlignment  float64           `json:"goldenAlignment"`
	PatternPresence  float64           `json:"patternPresence"`
	Resonance        float64           `json:"resonance"`
	FractalDimension float64           `json:"fractalDimension"`
	Safety           safety.Assessment `json:"safety"`
	Notes            []string          `json:"notes,omitempty"`
}

// Unanalyzed returns the result recorded for an item whose analysis did not
// complete: the default entry, its tier and full volume.
func Unanalyzed(reason string) *Result {
	def := canon.Default()
	r := &Result{
		Canonical:        def,
		FractalDimension: fractal.MinDimension,
		Safety:           safety.Assess(def.Hz),
	}
	if reason != "" {
		r.Notes = []string{reason}
	}
	return r
}

// Pipeline is a caller-owned analysis context. It caches the window and FFT
// plan, so give each goroutine its own Pipeline.
type Pipeline struct {
	analyzer *spectrum.Analyzer
}

// NewPipeline creates a new analysis pipeline
func NewPipeline(opts spectrum.Options) *Pipeline {
	return &Pipeline{analyzer: spectrum.NewAnalyzer(opts)}
}

// Options returns the spectral options in effect.
func (p *Pipeline) Options() spectrum.Options {
	return p.analyzer.Options()
}

// Analyze runs the full pipeline on block. Data problems never fail; only
// context expiry returns an error (ErrTimeout or ErrCanceled) and no partial
// result.
func (p *Pipeline) Analyze(ctx context.Context, block spectrum.Block) (*Result, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	spec := p.analyzer.Compute(block)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	peak := pitch.FindPeak(spec)
	match := canon.ClassifyMatch(peak.Hz)
	scores := pattern.Analyze(spec, peak.Hz)
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	dim := fractal.Dimension(spec)

	// Assess what was detected; with nothing detected, the default entry.
	assessHz := peak.Hz
	if assessHz <= 0 {
		assessHz = match.Frequency.Hz
	}

	r := &Result{
		DetectedHz:       peak.Hz,
		Canonical:        match.Frequency,
		CanonicalDistHz:  match.DistanceHz,
		HarmonicSeries:   scores.HarmonicSeries,
		GoldenAlignment:  scores.GoldenAlignment,
		PatternPresence:  scores.PatternPresence,
		Resonance:        scores.Resonance,
		FractalDimension: dim,
		Safety:           safety.Assess(assessHz),
	}
	r.Notes = buildNotes(r, spec, peak, block)

	return r, nil
}

// AnalyzeWithTimeout runs Analyze under a wall-clock deadline.
func (p *Pipeline) AnalyzeWithTimeout(ctx context.Context, block spectrum.Block, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Analyze(ctx, block)
}

// IsIncomplete reports whether err means the analysis did not finish, as
// opposed to a decoding or I/O failure.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCanceled)
}

func checkContext(ctx context.Context) error {
	return contextError(ctx.Err())
}

func contextError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	default:
		return err
	}
}

func buildNotes(r *Result, spec *spectrum.Spectrum, peak pitch.Peak, block spectrum.Block) []string {
	var notes []string

	switch {
	case block.SampleRate <= 0 || len(block.Samples) == 0:
		notes = append(notes, "No audio data; classified with the default entry.")
	case r.DetectedHz == 0:
		notes = append(notes, "No dominant pitch found; classified with the default entry.")
	default:
		var sum float64
		for _, m := range spec.Magnitudes {
			sum += m
		}
		mean := sum / float64(spec.Len())
		if mean > 0 && peak.Magnitude < weakPeakRatio*mean {
			notes = append(notes, "Weak dominant peak; classification is low confidence.")
		}
	}

	if r.Safety.Tier > safety.TierSafe {
		notes = append(notes, fmt.Sprintf("%s tier: recommended volume %.0f%%.",
			r.Safety.Tier, r.Safety.RecommendedVolume*100))
	}
	return notes
}
