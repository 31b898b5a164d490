// Package spectrum turns a block of mono PCM samples into a magnitude
// spectrum over a bounded frequency range.
package spectrum

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// DefaultWindowSize gives ~1.35 Hz bins at 44100 Hz.
	DefaultWindowSize = 16384
	// MaxWindowSize bounds the per-call allocation.
	MaxWindowSize = 32768
	// DefaultLowCutoffHz is the lowest frequency kept in the spectrum.
	DefaultLowCutoffHz = 20.0
	// DefaultHighCutoffHz is the highest frequency kept in the spectrum.
	DefaultHighCutoffHz = 4000.0
)

// Phi is the golden ratio.
var Phi = (1 + math.Sqrt(5)) / 2

// Block is a mono sample buffer with its sample rate.
type Block struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the block length in seconds.
func (b Block) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Spectrum is a magnitude spectrum. Bin i sits at i*BinWidth Hz.
type Spectrum struct {
	Magnitudes []float64
	BinWidth   float64
	SampleRate int
	LowHz      float64
	HighHz     float64
}

// Len returns the number of bins.
func (s *Spectrum) Len() int {
	return len(s.Magnitudes)
}

// Frequency returns the centre frequency of bin i.
func (s *Spectrum) Frequency(i int) float64 {
	return float64(i) * s.BinWidth
}

// BinFor returns the bin nearest to hz, or -1 when hz falls outside the
// spectrum.
func (s *Spectrum) BinFor(hz float64) int {
	if s.BinWidth <= 0 || hz < 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return -1
	}
	bin := int(math.Round(hz / s.BinWidth))
	if bin >= len(s.Magnitudes) {
		return -1
	}
	return bin
}

// MagnitudeAt returns the magnitude of the bin nearest to hz, or 0 when hz is
// out of range.
func (s *Spectrum) MagnitudeAt(hz float64) float64 {
	bin := s.BinFor(hz)
	if bin < 0 {
		return 0
	}
	return s.Magnitudes[bin]
}

// Options configures an Analyzer.
type Options struct {
	// WindowSize is the analysis window length N, a power of two.
	WindowSize int
	// Stride is the decimation factor (1 or 2). Stride 2 averages sample
	// pairs, halving bandwidth and cost per analyzed second while keeping
	// duration and bin resolution within 2x of the full-rate transform.
	Stride       int
	LowCutoffHz  float64
	HighCutoffHz float64
}

// DefaultOptions returns the default analyzer options.
func DefaultOptions() Options {
	return Options{
		WindowSize:   DefaultWindowSize,
		Stride:       1,
		LowCutoffHz:  DefaultLowCutoffHz,
		HighCutoffHz: DefaultHighCutoffHz,
	}
}

func (o Options) normalized() Options {
	if o.WindowSize < 2 || o.WindowSize > MaxWindowSize || o.WindowSize&(o.WindowSize-1) != 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.Stride < 1 {
		o.Stride = 1
	}
	if o.Stride > 2 {
		o.Stride = 2
	}
	if o.LowCutoffHz < 0 {
		o.LowCutoffHz = 0
	}
	if o.HighCutoffHz <= o.LowCutoffHz {
		o.HighCutoffHz = DefaultHighCutoffHz
	}
	return o
}

// Analyzer computes magnitude spectra. It caches the window and FFT plan, so
// one Analyzer should be owned by one caller; Compute is safe for concurrent
// use but serializes on the plan.
type Analyzer struct {
	mu sync.Mutex

	opts   Options
	fft    *fourier.FFT
	window []float64
	buf    []float64
	coeffs []complex128
}

// NewAnalyzer creates a new spectral analyzer
func NewAnalyzer(opts Options) *Analyzer {
	opts = opts.normalized()
	n := opts.WindowSize
	return &Analyzer{
		opts:   opts,
		fft:    fourier.NewFFT(2 * n),
		window: GoldenWindow(n),
		buf:    make([]float64, 2*n),
		coeffs: make([]complex128, n+1),
	}
}

// Options returns the effective options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// GoldenWindow returns sin(pi*n/(L-1))^phi, a bell with zero edges and unity
// centre gain.
func GoldenWindow(length int) []float64 {
	w := make([]float64, length)
	if length == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		s := math.Sin(math.Pi * float64(i) / float64(length-1))
		if s < 0 {
			s = 0
		}
		w[i] = math.Pow(s, Phi)
	}
	return w
}

// Compute returns the magnitude spectrum of block, averaged over
// half-overlapping windows of N samples that cover the whole block. Blocks
// shorter than N are analyzed as a single shorter window. Invalid input
// yields an all-zero spectrum.
func (a *Analyzer) Compute(block Block) *Spectrum {
	n := a.opts.WindowSize
	out := &Spectrum{
		Magnitudes: make([]float64, n),
		SampleRate: block.SampleRate,
		LowHz:      a.opts.LowCutoffHz,
		HighHz:     a.opts.HighCutoffHz,
	}
	if block.SampleRate <= 0 {
		return out
	}

	rate := float64(block.SampleRate) / float64(a.opts.Stride)
	out.BinWidth = rate / float64(2*n)
	if nyquist := rate / 2; out.HighHz > nyquist {
		out.HighHz = nyquist
	}
	if len(block.Samples) == 0 {
		return out
	}

	samples := decimate(block.Samples, a.opts.Stride)

	a.mu.Lock()
	defer a.mu.Unlock()

	window := a.window
	if len(samples) < n {
		window = GoldenWindow(len(samples))
	}
	var windowSum float64
	for _, w := range window {
		windowSum += w
	}
	if windowSum == 0 {
		return out
	}

	starts := frameStarts(len(samples), n)
	for _, start := range starts {
		end := start + len(window)
		a.processFrame(samples[start:end], window, out)
	}

	scale := 2 / (windowSum * float64(len(starts)))
	for i, m := range out.Magnitudes {
		mag := m * scale
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			mag = 0
		}
		out.Magnitudes[i] = mag
	}

	return out
}

// processFrame windows one frame and adds its in-band magnitudes to out.
func (a *Analyzer) processFrame(frame, window []float64, out *Spectrum) {
	for i := range a.buf {
		a.buf[i] = 0
	}
	for i, v := range frame {
		a.buf[i] = v * window[i]
	}

	coeffs := a.fft.Coefficients(a.coeffs, a.buf)
	for i := range out.Magnitudes {
		freq := float64(i) * out.BinWidth
		if freq < out.LowHz || freq > out.HighHz {
			continue
		}
		c := coeffs[i]
		out.Magnitudes[i] += math.Hypot(real(c), imag(c))
	}
}

// frameStarts returns the offsets of windows of n samples hopped by n/2 over
// length samples. The last window is aligned to the end of the block so the
// tail is always covered.
func frameStarts(length, n int) []int {
	if length <= n {
		return []int{0}
	}
	hop := n / 2
	if hop < 1 {
		hop = 1
	}
	var starts []int
	for start := 0; start+n <= length; start += hop {
		starts = append(starts, start)
	}
	if last := length - n; starts[len(starts)-1] != last {
		starts = append(starts, last)
	}
	return starts
}

// decimate averages groups of stride samples.
func decimate(samples []float64, stride int) []float64 {
	if stride <= 1 {
		return samples
	}
	out := make([]float64, 0, len(samples)/stride+1)
	for i := 0; i < len(samples); i += stride {
		end := i + stride
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, v := range samples[i:end] {
			sum += v
		}
		out = append(out, sum/float64(end-i))
	}
	return out
}
