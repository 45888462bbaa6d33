package audio

import "math"

// Analysis band for the coarse magnitude spectrum: bins every 25Hz from
// 50Hz up to 4kHz (or just below Nyquist for low sample rates). Speech
// energy lives well inside this band; finer resolution buys nothing for
// activity detection.
const (
	bandLowHz  = 50.0
	bandStepHz = 25.0
	bandHighHz = 4000.0
)

// Voice fundamental range scanned by [Pitch].
const (
	pitchMinHz = 80
	pitchMaxHz = 400
)

// pitchCorrFloor is the minimum normalized autocorrelation, relative to the
// window's mean power, for a lag to count as periodic. Below it the window
// is treated as aperiodic and Pitch reports 0.
const pitchCorrFloor = 0.3

// Sanitize replaces NaN and Inf samples with zero in place and returns the
// number of samples replaced. Call it once per frame before analysis and
// resampling so downstream math never sees non-finite values.
func Sanitize(samples []float32) int {
	n := 0
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			samples[i] = 0
			n++
		}
	}
	return n
}

// RMS returns the root-mean-square level of a window, 0 for an empty one.
// Non-finite samples contribute zero.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := finite(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DominantFrequency estimates the strongest spectral component of a window
// in Hz using a coarse Goertzel scan of the analysis band. Returns 0 for
// empty or silent windows and for sample rates too low to carry the band.
func DominantFrequency(samples []float32, sampleRate int) float64 {
	mags, ok := magnitudeSpectrum(samples, sampleRate)
	if !ok {
		return 0
	}
	best, bestIdx := 0.0, -1
	for i, m := range mags {
		if m > best {
			best = m
			bestIdx = i
		}
	}
	if bestIdx < 0 || best == 0 {
		return 0
	}
	return bandLowHz + float64(bestIdx)*bandStepHz
}

// SpectralFlatness returns the ratio of geometric to arithmetic mean of the
// window's coarse magnitude spectrum, in [0, 1]. Values near 1 indicate a
// flat, noise-like spectrum; values near 0 indicate tonal content such as
// voiced speech. Empty and silent windows report the neutral value 1.
func SpectralFlatness(samples []float32, sampleRate int) float64 {
	mags, ok := magnitudeSpectrum(samples, sampleRate)
	if !ok {
		return 1
	}
	const eps = 1e-12
	var logSum, sum float64
	for _, m := range mags {
		logSum += math.Log(m + eps)
		sum += m
	}
	n := float64(len(mags))
	arith := sum / n
	if arith <= eps {
		return 1
	}
	flatness := math.Exp(logSum/n) / arith
	if flatness > 1 {
		flatness = 1
	} else if flatness < 0 {
		flatness = 0
	}
	return flatness
}

// Pitch estimates the fundamental frequency of a window in Hz by scanning
// autocorrelation lags across the voice fundamental range (80-400Hz).
// Returns 0 when the window is empty, silent, aperiodic, or too short to
// hold one full period of the lowest fundamental.
func Pitch(samples []float32, sampleRate int) float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return 0
	}
	minLag := sampleRate / pitchMaxHz
	maxLag := sampleRate / pitchMinHz
	if minLag < 1 || maxLag >= len(samples) {
		return 0
	}

	var energy float64
	for _, s := range samples {
		f := finite(s)
		energy += f * f
	}
	if energy == 0 {
		return 0
	}
	meanPower := energy / float64(len(samples))

	best, bestLag := 0.0, 0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i+lag < len(samples); i++ {
			sum += finite(samples[i]) * finite(samples[i+lag])
		}
		norm := sum / float64(len(samples)-lag)
		if norm > best {
			best = norm
			bestLag = lag
		}
	}
	if bestLag == 0 || best < pitchCorrFloor*meanPower {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

// magnitudeSpectrum runs a Goertzel filter per analysis bin and returns the
// normalized magnitudes. ok is false when the window is empty or the sample
// rate cannot carry the lowest bin.
func magnitudeSpectrum(samples []float32, sampleRate int) (mags []float64, ok bool) {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil, false
	}
	top := bandHighHz
	if nyquist := float64(sampleRate) / 2; top > nyquist-bandStepHz {
		top = nyquist - bandStepHz
	}
	if top < bandLowHz {
		return nil, false
	}
	bins := int((top-bandLowHz)/bandStepHz) + 1

	n := float64(len(samples))
	mags = make([]float64, bins)
	for b := range bins {
		freq := bandLowHz + float64(b)*bandStepHz
		w := 2 * math.Pi * freq / float64(sampleRate)
		coeff := 2 * math.Cos(w)
		var s1, s2 float64
		for _, sample := range samples {
			s := finite(sample) + coeff*s1 - s2
			s2 = s1
			s1 = s
		}
		power := s1*s1 + s2*s2 - coeff*s1*s2
		if power < 0 {
			power = 0
		}
		mags[b] = 2 * math.Sqrt(power) / n
	}
	return mags, true
}

// finite returns s widened to float64 with NaN and Inf mapped to zero.
func finite(s float32) float64 {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
