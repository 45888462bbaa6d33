// Package capture defines the microphone input abstraction for the Auricle
// pipeline and ships two reference sources:
//
//   - [Reader] — frames interleaved little-endian PCM16 from an io.Reader,
//     the production path when audio is piped in from a capture utility
//     such as arecord, sox, or parec.
//   - [Tone] — a synthetic sine generator used by tests and demo mode.
//
// A [Source] is deliberately narrow: it delivers fixed-size [audio.Frame]
// values on a channel and reports the device-native format. Resampling,
// analysis, and chunking all happen downstream in the processing engine.
//
// This package lives under pkg/ because external code (platform-specific
// capture backends such as ALSA or CoreAudio adapters) is expected to
// implement [Source].
package capture

import (
	"context"

	"github.com/MrWong99/auricle/pkg/audio"
)

// Source is an active audio input delivering fixed-size frames.
//
// A Source is single-use: Start may be called once, and the Frames channel
// is closed when the input ends or Close is called. Implementations must be
// safe for concurrent use of Close against a running Start.
type Source interface {
	// Start begins frame delivery. The supplied ctx governs the capture
	// lifetime; cancelling it stops delivery and closes the Frames channel.
	// Start returns an error if the device cannot be opened.
	Start(ctx context.Context) error

	// Frames returns the channel of captured frames. The channel is closed
	// when the input ends, the context is cancelled, or Close is called.
	Frames() <-chan audio.Frame

	// Format returns the device-native sample rate and channel count.
	// Valid before Start.
	Format() audio.Format

	// Err returns the terminal capture error after the Frames channel has
	// closed, or nil if the input ended cleanly.
	Err() error

	// Close stops capture and releases the device. It is safe to call
	// Close more than once; subsequent calls are no-ops and return nil.
	Close() error
}
