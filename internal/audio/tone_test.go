package audio

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

// memOutput collects PCM in memory.
type memOutput struct {
	bytes.Buffer
	rate     int
	channels int
	volume   float64
}

func (m *memOutput) SampleRate() int                 { return m.rate }
func (m *memOutput) Channels() int                   { return m.channels }
func (m *memOutput) SetVolume(v float64)             { m.volume = v }
func (m *memOutput) Drain(ctx context.Context) error { return ctx.Err() }
func (m *memOutput) Close() error                    { return nil }
func (m *memOutput) Pause()                          {}
func (m *memOutput) Resume()                         {}
func (m *memOutput) Stop()                           { m.Reset() }

func TestTone(t *testing.T) {
	s := Tone(441, time.Second, 44100)
	if len(s) != 44100 {
		t.Fatalf("Expected 44100 samples, got %d", len(s))
	}
	if s[0] != 0 || s[len(s)-1] != 0 {
		t.Errorf("Expected faded edges, got %f and %f", s[0], s[len(s)-1])
	}

	var peak float64
	for _, v := range s {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak > 1 || peak < 0.99 {
		t.Errorf("Expected unit amplitude, got %f", peak)
	}

	for _, bad := range [][3]float64{{0, 1, 44100}, {440, 0, 44100}, {440, 1, 0}} {
		if Tone(bad[0], time.Duration(bad[1]*float64(time.Second)), int(bad[2])) != nil {
			t.Errorf("Expected nil tone for %v", bad)
		}
	}
}

func TestEffectiveVolume(t *testing.T) {
	tests := []struct {
		name string
		req  ToneRequest
		want float64
	}{
		{"safe tone keeps request", ToneRequest{Hz: 528, Volume: 0.9, AutoAttenuate: true}, 0.9},
		{"high tone attenuated", ToneRequest{Hz: 3000, Volume: 1, AutoAttenuate: true}, safety.RecommendedVolume(3000)},
		{"attenuation off", ToneRequest{Hz: 3000, Volume: 1}, 1},
		{"request below cap", ToneRequest{Hz: 3000, Volume: 0.1, AutoAttenuate: true}, 0.1},
		{"clamped", ToneRequest{Hz: 528, Volume: 4}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.EffectiveVolume(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestPlayTone(t *testing.T) {
	out := &memOutput{rate: 8000, channels: 2}
	req := ToneRequest{Hz: 2000, Duration: 250 * time.Millisecond, Volume: 1, AutoAttenuate: true}

	vol, err := PlayTone(context.Background(), out, req)
	if err != nil {
		t.Fatalf("PlayTone failed: %v", err)
	}
	if vol != safety.RecommendedVolume(2000) || out.volume != vol {
		t.Errorf("Expected volume %f applied, got %f (output %f)", safety.RecommendedVolume(2000), vol, out.volume)
	}
	if want := 2000 * 2 * 2; out.Len() != want {
		t.Errorf("Expected %d bytes, got %d", want, out.Len())
	}

	if _, err := PlayTone(context.Background(), out, ToneRequest{Hz: -1, Duration: time.Second}); err == nil {
		t.Error("Expected error for invalid tone")
	}
}
