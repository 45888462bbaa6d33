package audio

// Resample converts a window of mono samples from srcRate to dstRate using
// linear interpolation between neighboring input samples. The output length
// is floor(len(samples) × dstRate / srcRate). If srcRate == dstRate, the
// input is returned unchanged (the result may alias the input).
//
// Resample treats each window independently; use [Resampler] when windows
// form a continuous stream and interpolation must carry across boundaries.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	srcSamples := len(samples)
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0 + float32(frac)*(s1-s0)
	}
	return out
}

// Resampler converts a continuous mono stream from srcRate to dstRate one
// window at a time, carrying the fractional read position and the previous
// window's tail sample across calls. Unlike [Resample], concatenating the
// outputs of successive Process calls is sample-identical to resampling the
// concatenated input in one pass, so no duration drifts in or out at window
// boundaries.
//
// Not safe for concurrent use; the processing engine owns one per stream.
type Resampler struct {
	srcRate int
	dstRate int
	ratio   float64 // srcRate / dstRate, source samples consumed per output sample

	// pos is the source index of the next output sample, relative to the
	// start of the current window. A value in [-1, 0) interpolates between
	// prev and the current window's first sample.
	pos  float64
	prev float32
}

// NewResampler returns a resampler from srcRate to dstRate. Both rates must
// be positive; equal rates are allowed and pass windows through unchanged.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{
		srcRate: srcRate,
		dstRate: dstRate,
		ratio:   float64(srcRate) / float64(dstRate),
	}
}

// Process resamples one window and returns the output samples produced so
// far. An output sample whose interpolation window extends past the end of
// src is held back until the next call supplies the neighboring sample, so
// individual calls may return one sample more or fewer than the per-window
// floor; the running total stays exact. When srcRate == dstRate the input
// is returned unchanged (the result may alias the input).
func (r *Resampler) Process(src []float32) []float32 {
	if r.srcRate == r.dstRate {
		return src
	}
	if len(src) == 0 {
		return nil
	}

	out := make([]float32, 0, int(float64(len(src))/r.ratio)+2)
	limit := float64(len(src) - 1)
	for r.pos < limit {
		idx := int(r.pos)
		frac := r.pos - float64(idx)
		var s0 float32
		if r.pos < 0 {
			// Interpolating across the window boundary.
			idx = -1
			frac = r.pos + 1
			s0 = r.prev
		} else {
			s0 = src[idx]
		}
		s1 := src[idx+1]
		out = append(out, s0+float32(frac)*(s1-s0))
		r.pos += r.ratio
	}

	r.pos -= float64(len(src))
	r.prev = src[len(src)-1]
	return out
}

// Reset discards carried interpolation state. Any output sample held back
// by the previous Process call is dropped; the next call starts a fresh
// stream at position zero.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
}

// Rates returns the configured source and destination sample rates.
func (r *Resampler) Rates() (src, dst int) {
	return r.srcRate, r.dstRate
}
