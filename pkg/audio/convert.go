package audio

// FloatToPCM16 converts normalized float samples to little-endian int16 PCM.
// Samples outside [-1, 1] are clamped to full scale rather than wrapped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat converts little-endian int16 PCM to normalized float samples.
// A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}

// Downmix averages interleaved multi-channel samples into a mono window.
// Mono input is returned unchanged (zero allocation). The average of samples
// in [-1, 1] stays in range, so no clamping is needed.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// CountClipped returns the number of samples at or beyond full scale.
// Capture devices clamp rather than wrap, so a run of full-scale samples
// indicates the analog stage is overdriven.
func CountClipped(samples []float32) int {
	n := 0
	for _, s := range samples {
		if s >= clipLevel || s <= -clipLevel {
			n++
		}
	}
	return n
}

// clipLevel is just below full scale so that devices which clamp slightly
// inside [-1, 1] are still counted.
const clipLevel = 0.999

