package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
)

// ToneConfig configures a synthetic [Tone] source.
type ToneConfig struct {
	// Frequency of the sine wave in Hz.
	Frequency float64

	// Amplitude in [0, 1]. Zero produces digital silence.
	Amplitude float64

	// Format of the generated stream. Defaults to 48000Hz mono.
	Format audio.Format

	// FrameSize is the number of samples per channel in each frame.
	// Defaults to [audio.DefaultFrameSize].
	FrameSize int

	// MaxFrames stops the source after this many frames. Zero means
	// unlimited; pacing then throttles generation to real time.
	MaxFrames int

	// Paced throttles generation to the frame's real-time cadence.
	// Leave false in tests so a bounded stream completes immediately.
	Paced bool
}

func (c *ToneConfig) normalize() {
	if c.Format.SampleRate == 0 {
		c.Format.SampleRate = 48000
	}
	if c.Format.Channels == 0 {
		c.Format.Channels = 1
	}
	if c.FrameSize == 0 {
		c.FrameSize = audio.DefaultFrameSize
	}
}

// Tone generates a continuous sine wave, frame by frame, with phase carried
// across frame boundaries. It implements [Source] for tests and demo mode.
type Tone struct {
	cfg    ToneConfig
	frames chan audio.Frame

	done    chan struct{}
	closed  sync.Once
	started bool
	wg      sync.WaitGroup
}

// NewTone returns an unstarted tone source. The config is normalized with
// defaults for any zero fields.
func NewTone(cfg ToneConfig) *Tone {
	cfg.normalize()
	return &Tone{
		cfg:    cfg,
		frames: make(chan audio.Frame, 16),
		done:   make(chan struct{}),
	}
}

// Start launches the generator goroutine.
func (t *Tone) Start(ctx context.Context) error {
	if t.started {
		return errors.New("tone source already started")
	}
	if t.cfg.Format.SampleRate <= 0 || t.cfg.FrameSize <= 0 {
		return errors.New("tone source: sample rate and frame size must be positive")
	}
	t.started = true
	t.wg.Add(1)
	go t.generate(ctx)
	return nil
}

// Frames returns the generated frame stream.
func (t *Tone) Frames() <-chan audio.Frame {
	return t.frames
}

// Format returns the configured stream format.
func (t *Tone) Format() audio.Format {
	return t.cfg.Format
}

// Err always returns nil; a tone source has no failure mode.
func (t *Tone) Err() error {
	return nil
}

// Close stops generation and closes the Frames channel. Safe to call more
// than once.
func (t *Tone) Close() error {
	t.closed.Do(func() {
		close(t.done)
	})
	t.wg.Wait()
	return nil
}

func (t *Tone) generate(ctx context.Context) {
	defer t.wg.Done()
	defer close(t.frames)

	frameDur := time.Duration(t.cfg.FrameSize) * time.Second / time.Duration(t.cfg.Format.SampleRate)
	var ticker *time.Ticker
	if t.cfg.Paced {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	step := 2 * math.Pi * t.cfg.Frequency / float64(t.cfg.Format.SampleRate)
	var phase float64
	var elapsed time.Duration

	for n := 0; t.cfg.MaxFrames == 0 || n < t.cfg.MaxFrames; n++ {
		samples := make([]float32, t.cfg.FrameSize*t.cfg.Format.Channels)
		for i := range t.cfg.FrameSize {
			s := float32(t.cfg.Amplitude * math.Sin(phase))
			phase += step
			for c := range t.cfg.Format.Channels {
				samples[i*t.cfg.Format.Channels+c] = s
			}
		}
		// Keep phase bounded so long runs don't lose precision.
		if phase > 2*math.Pi {
			phase = math.Mod(phase, 2*math.Pi)
		}

		frame := audio.Frame{
			Samples:    samples,
			SampleRate: t.cfg.Format.SampleRate,
			Channels:   t.cfg.Format.Channels,
			Timestamp:  elapsed,
		}
		elapsed += frameDur

		select {
		case t.frames <- frame:
		case <-t.done:
			return
		case <-ctx.Done():
			return
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-t.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
