package audio

import "math"

// PCMToMono converts interleaved s16le PCM to mono samples in [-1, 1).
// Trailing partial frames are dropped.
func PCMToMono(data []byte, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	bytesPerSample := 2
	numSamples := len(data) / (bytesPerSample * channels)

	samples := make([]float64, numSamples)
	for i := 0; i < numSamples; i++ {
		offset := i * bytesPerSample * channels
		var sum float64
		for ch := 0; ch < channels; ch++ {
			chOffset := offset + ch*bytesPerSample
			sample := int16(data[chOffset]) | int16(data[chOffset+1])<<8
			sum += float64(sample) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return samples
}

// MonoToPCM encodes samples as interleaved s16le PCM, duplicating each
// sample across channels. Samples are clipped to [-1, 1].
func MonoToPCM(samples []float64, channels int) []byte {
	if channels < 1 {
		channels = 1
	}
	out := make([]byte, len(samples)*channels*2)
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		v := int16(math.Round(s * 32767))
		for ch := 0; ch < channels; ch++ {
			o := (i*channels + ch) * 2
			out[o] = byte(v)
			out[o+1] = byte(v >> 8)
		}
	}
	return out
}
