package vad

import (
	"fmt"

	"github.com/MrWong99/auricle/pkg/audio"
)

// confCap caps each per-signal score at twice its threshold, so one very
// loud signal cannot saturate the combined confidence on its own.
const confCap = 2.0

// Detector classifies sample windows as speech or silence. It carries the
// hysteresis counters and the stable decision between calls, so windows
// must be fed in stream order.
//
// Not safe for concurrent use; the processing engine owns one per stream.
type Detector struct {
	thresholds Thresholds

	speechFrames  int
	silenceFrames int
	speech        bool
}

// NewDetector returns a detector using the given thresholds.
func NewDetector(t Thresholds) (*Detector, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("vad thresholds: %w", err)
	}
	return &Detector{thresholds: t}, nil
}

// Thresholds returns the active thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// SetThresholds swaps the active thresholds without resetting the
// hysteresis counters, so live tuning does not glitch the stable decision.
func (d *Detector) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("vad thresholds: %w", err)
	}
	d.thresholds = t
	return nil
}

// Reset zeroes the hysteresis counters and returns the stable decision to
// silence, as if the detector were freshly constructed.
func (d *Detector) Reset() {
	d.speechFrames = 0
	d.silenceFrames = 0
	d.speech = false
}

// Process classifies one window of mono samples. Non-finite samples are
// zeroed in place before analysis. Malformed input (an empty window or a
// non-positive sample rate) never fails: it is treated as a silence vote
// and reported with zero confidence.
func (d *Detector) Process(samples []float32, sampleRate int) Result {
	audio.Sanitize(samples)

	var r Result
	if len(samples) > 0 && sampleRate > 0 {
		r.RMS = audio.RMS(samples)
		r.DominantFrequency = audio.DominantFrequency(samples, sampleRate)
		r.Flatness = audio.SpectralFlatness(samples, sampleRate)
		r.Pitch = audio.Pitch(samples, sampleRate)
	} else {
		r.Flatness = 1
	}

	t := d.thresholds
	r.EnergyDetected = r.RMS > t.Energy
	r.FrequencyDetected = r.DominantFrequency >= t.Frequency
	r.FlatnessDetected = r.Flatness < t.Flatness
	r.PitchDetected = r.Pitch >= t.Pitch

	// Energy is necessary; any one spectral signal corroborates it.
	vote := r.EnergyDetected &&
		(r.FrequencyDetected || r.FlatnessDetected || r.PitchDetected)

	r.Confidence = d.confidence(r)

	if vote {
		d.speechFrames++
		d.silenceFrames = 0
		if !d.speech && d.speechFrames >= t.SilenceToSpeechFrames {
			d.speech = true
		}
	} else {
		d.silenceFrames++
		d.speechFrames = 0
		if d.speech && d.silenceFrames >= t.SpeechToSilenceFrames {
			d.speech = false
		}
	}

	r.Speech = d.speech
	r.SpeechFrames = d.speechFrames
	r.SilenceFrames = d.silenceFrames
	return r
}

// confidence averages how far each measurement clears its threshold. The
// energy detection gates the whole score: a window without energy reports
// zero confidence no matter what the spectral measurements say.
func (d *Detector) confidence(r Result) float64 {
	if !r.EnergyDetected {
		return 0
	}
	t := d.thresholds

	score := marginScore(r.RMS, t.Energy)
	score += marginScore(r.DominantFrequency, t.Frequency)
	// Flatness detects downward: lower is more tonal, so invert the ratio.
	if r.Flatness > 0 {
		score += marginScore(t.Flatness, r.Flatness)
	} else {
		score += 1
	}
	score += marginScore(r.Pitch, t.Pitch)

	conf := score / 4
	if conf > 1 {
		conf = 1
	} else if conf < 0 {
		conf = 0
	}
	return conf
}

// marginScore maps measurement/threshold into [0, 1]: 0 at zero
// measurement, 0.5 exactly at the threshold, 1 at twice the threshold or
// beyond.
func marginScore(measurement, threshold float64) float64 {
	if threshold <= 0 || measurement <= 0 {
		return 0
	}
	ratio := measurement / threshold
	if ratio > confCap {
		ratio = confCap
	}
	return ratio / confCap
}
