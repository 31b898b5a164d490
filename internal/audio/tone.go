package audio

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

// fadeDuration ramps tone edges to avoid clicks.
const fadeDuration = 20 * time.Millisecond

// Tone synthesizes a mono sine at hz with linear fade in and out.
func Tone(hz float64, duration time.Duration, sampleRate int) []float64 {
	if hz <= 0 || duration <= 0 || sampleRate <= 0 {
		return nil
	}

	n := int(duration.Seconds() * float64(sampleRate))
	fade := int(fadeDuration.Seconds() * float64(sampleRate))
	if fade*2 > n {
		fade = n / 2
	}

	samples := make([]float64, n)
	for i := range samples {
		gain := 1.0
		switch {
		case i < fade:
			gain = float64(i) / float64(fade)
		case i >= n-fade:
			gain = float64(n-1-i) / float64(fade)
		}
		samples[i] = gain * math.Sin(2*math.Pi*hz*float64(i)/float64(sampleRate))
	}
	return samples
}

// ToneRequest describes an audible preview.
type ToneRequest struct {
	Hz       float64
	Duration time.Duration
	Volume   float64 // Requested volume (0.0 - 1.0)
	// AutoAttenuate caps Volume at the recommended volume for Hz.
	AutoAttenuate bool
}

// EffectiveVolume returns the gain PlayTone will use for req.
func (req ToneRequest) EffectiveVolume() float64 {
	vol := math.Max(0, math.Min(1, req.Volume))
	if req.AutoAttenuate {
		vol = math.Min(vol, safety.RecommendedVolume(req.Hz))
	}
	return vol
}

// PlayTone writes a sine preview to out and waits for it to drain. It
// returns the volume applied.
func PlayTone(ctx context.Context, out Output, req ToneRequest) (float64, error) {
	samples := Tone(req.Hz, req.Duration, out.SampleRate())
	if samples == nil {
		return 0, fmt.Errorf("invalid tone %.2f Hz for %s", req.Hz, req.Duration)
	}

	vol := req.EffectiveVolume()
	out.SetVolume(vol)
	log.Printf("[AUDIO] Playing %.2f Hz for %s at volume %.2f (%s)",
		req.Hz, req.Duration, vol, safety.Classify(req.Hz))

	pcm := MonoToPCM(samples, out.Channels())
	const chunk = 4096
	for start := 0; start < len(pcm); start += chunk {
		if err := ctx.Err(); err != nil {
			return vol, err
		}
		end := start + chunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := out.Write(pcm[start:end]); err != nil {
			return vol, fmt.Errorf("failed to write to output: %w", err)
		}
	}

	return vol, out.Drain(ctx)
}
