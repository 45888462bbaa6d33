// Package vad implements multi-signal voice activity detection for the
// Auricle pipeline.
//
// A [Detector] classifies each incoming sample window as speech or silence
// by combining four independent measurements (RMS energy, dominant
// frequency, spectral flatness, pitch) against a set of [Thresholds], then
// smoothing the per-frame votes through a dual-counter hysteresis so the
// reported decision never flickers on single-frame noise.
//
// This package lives under pkg/ because external tooling (threshold tuning,
// offline analysis) is expected to consume the detector directly.
package vad

import (
	"errors"
	"fmt"
)

// Sensitivity selects a named threshold preset.
type Sensitivity string

const (
	// SensitivityLow triggers only on strong, sustained speech.
	SensitivityLow Sensitivity = "low"

	// SensitivityMedium is the balanced default.
	SensitivityMedium Sensitivity = "medium"

	// SensitivityHigh triggers on quiet or distant speech at the cost of
	// more false positives.
	SensitivityHigh Sensitivity = "high"

	// SensitivityCustom means the caller supplies explicit [Thresholds].
	SensitivityCustom Sensitivity = "custom"
)

// IsValid reports whether s is a recognised sensitivity preset.
func (s Sensitivity) IsValid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh, SensitivityCustom:
		return true
	}
	return false
}

// Thresholds holds the detection limits for the four signal measurements
// plus the hysteresis frame counts. The zero value is not usable; start
// from [ForSensitivity] or fill every field.
type Thresholds struct {
	// Energy is the minimum RMS level for the energy detection.
	Energy float64

	// Frequency is the minimum dominant frequency in Hz for the
	// frequency detection.
	Frequency float64

	// Flatness is the maximum spectral flatness for the flatness
	// detection; windows flatter than this are treated as noise.
	Flatness float64

	// Pitch is the minimum fundamental frequency in Hz for the pitch
	// detection.
	Pitch float64

	// SilenceToSpeechFrames is the number of consecutive speech votes
	// required to flip the stable decision from silence to speech.
	SilenceToSpeechFrames int

	// SpeechToSilenceFrames is the number of consecutive silence votes
	// required to flip the stable decision from speech to silence.
	// Must be at least SilenceToSpeechFrames: activation is fast,
	// deactivation is slow.
	SpeechToSilenceFrames int
}

// ForSensitivity returns the threshold preset for s. Custom (and any
// unrecognised value) returns the medium preset; callers using
// [SensitivityCustom] are expected to overwrite the result.
func ForSensitivity(s Sensitivity) Thresholds {
	switch s {
	case SensitivityLow:
		return Thresholds{
			Energy:                0.025,
			Frequency:             120,
			Flatness:              0.35,
			Pitch:                 85,
			SilenceToSpeechFrames: 4,
			SpeechToSilenceFrames: 12,
		}
	case SensitivityHigh:
		return Thresholds{
			Energy:                0.005,
			Frequency:             75,
			Flatness:              0.6,
			Pitch:                 70,
			SilenceToSpeechFrames: 2,
			SpeechToSilenceFrames: 8,
		}
	default:
		return Thresholds{
			Energy:                0.01,
			Frequency:             85,
			Flatness:              0.5,
			Pitch:                 75,
			SilenceToSpeechFrames: 3,
			SpeechToSilenceFrames: 10,
		}
	}
}

// Validate checks that all thresholds are positive, flatness is a ratio,
// and the hysteresis counters keep activation at least as fast as
// deactivation. All violations are reported, not just the first.
func (t Thresholds) Validate() error {
	var errs []error
	if t.Energy <= 0 {
		errs = append(errs, fmt.Errorf("energy threshold must be positive, got %g", t.Energy))
	}
	if t.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("frequency threshold must be positive, got %g", t.Frequency))
	}
	if t.Flatness <= 0 || t.Flatness > 1 {
		errs = append(errs, fmt.Errorf("flatness threshold must be in (0, 1], got %g", t.Flatness))
	}
	if t.Pitch <= 0 {
		errs = append(errs, fmt.Errorf("pitch threshold must be positive, got %g", t.Pitch))
	}
	if t.SilenceToSpeechFrames < 1 {
		errs = append(errs, fmt.Errorf("silence-to-speech frames must be at least 1, got %d", t.SilenceToSpeechFrames))
	}
	if t.SpeechToSilenceFrames < 1 {
		errs = append(errs, fmt.Errorf("speech-to-silence frames must be at least 1, got %d", t.SpeechToSilenceFrames))
	}
	if t.SilenceToSpeechFrames >= 1 && t.SpeechToSilenceFrames >= 1 &&
		t.SilenceToSpeechFrames > t.SpeechToSilenceFrames {
		errs = append(errs, fmt.Errorf(
			"silence-to-speech frames (%d) must not exceed speech-to-silence frames (%d)",
			t.SilenceToSpeechFrames, t.SpeechToSilenceFrames))
	}
	return errors.Join(errs...)
}

// Result is the outcome of classifying one sample window. It is a plain
// value, recomputed every frame; the Speech field carries the stable
// hysteresis decision, not the raw per-frame vote.
type Result struct {
	// Speech is the stable decision after hysteresis.
	Speech bool

	// Confidence in [0, 1], derived from how far the measurements clear
	// their thresholds. Zero whenever the energy detection fails.
	Confidence float64

	// Per-signal detections against the active thresholds.
	EnergyDetected    bool
	FrequencyDetected bool
	FlatnessDetected  bool
	PitchDetected     bool

	// Underlying measurements for the window.
	RMS               float64
	DominantFrequency float64
	Flatness          float64
	Pitch             float64

	// Consecutive vote counters after this window was applied. Exactly
	// one of them is nonzero.
	SpeechFrames  int
	SilenceFrames int
}
