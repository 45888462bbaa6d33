package engine

import (
	"time"

	"github.com/MrWong99/auricle/pkg/vad"
)

// Chunk is one fixed-duration bundle of resampled audio plus its quality
// metadata — the unit of transmission to the speech service. Chunks are
// created by the engine at chunk boundaries and never mutated afterwards;
// everything downstream treats them as immutable values.
type Chunk struct {
	// Samples holds mono float samples in [-1, 1] at OutputRate.
	Samples []float32

	// InputRate is the capture rate the samples were resampled from,
	// OutputRate the rate they carry now.
	InputRate  int
	OutputRate int

	// Sequence increases monotonically from 1 within one engine start.
	Sequence uint64

	// Start is the chunk's offset from engine start; Duration its length.
	// A flushed partial chunk carries a shorter Duration than configured.
	Start    time.Duration
	Duration time.Duration

	// VAD is the detector state at chunk close. The Speech field is the
	// stable hysteresis decision; Confidence is the mean per-frame
	// confidence across the chunk.
	VAD vad.Result

	// RMS is the signal level over the chunk's samples and Clipped the
	// number of input samples at full scale while it accumulated.
	RMS     float64
	Clipped int

	// ProcessingTime is the engine time spent producing this chunk.
	ProcessingTime time.Duration
}
