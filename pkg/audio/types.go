// Package audio defines the sample types and numeric routines shared by the
// Auricle capture pipeline.
//
// The two primary abstractions are:
//
//   - [Frame] — a fixed-size window of normalized float samples as delivered
//     by a capture device, the atomic unit of processing.
//   - Pure signal functions ([RMS], [DominantFrequency], [SpectralFlatness],
//     [Pitch], [Resample]) that voice-activity detection and the processing
//     engine are built on.
//
// All numeric routines are deterministic and side-effect-free. They tolerate
// malformed input (empty windows, NaN/Inf samples) and return zero or neutral
// values instead of panicking; this package is the only place such defenses
// live, so callers upstream can assume finite samples.
//
// This package lives under pkg/ because external code (alternative capture
// backends, analysis tooling) is expected to consume these types.
package audio

import (
	"fmt"
	"time"
)

// DefaultFrameSize is the number of samples per capture callback at 48kHz:
// a 20ms frame, matching the cadence most capture backends deliver.
const DefaultFrameSize = 960

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form like "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Frame represents a single window of audio samples flowing through the
// pipeline. Frames are captured from an input device, analyzed by VAD,
// resampled, and accumulated into chunks.
type Frame struct {
	// Samples holds normalized float samples in [-1, 1]. For multi-channel
	// input the samples are interleaved (L R L R ... for stereo).
	Samples []float32

	// SampleRate in Hz as reported by the capture device (e.g. 48000).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame, derived from its
// per-channel sample count. Returns 0 for frames with an invalid format.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}
