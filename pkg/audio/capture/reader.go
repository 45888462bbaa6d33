package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
)

// ReaderConfig configures a [Reader] source.
type ReaderConfig struct {
	// Format of the incoming PCM stream. Defaults to 48000Hz mono.
	Format audio.Format

	// FrameSize is the number of samples per channel in each frame.
	// Defaults to [audio.DefaultFrameSize].
	FrameSize int
}

func (c *ReaderConfig) normalize() {
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

// Reader frames interleaved little-endian PCM16 from an io.Reader into
// normalized float frames. It is the production capture path when audio is
// piped in from an external utility, e.g.:
//
//	arecord -f S16_LE -r 48000 -c 1 | auricle
//
// The reader is paced by the pipe itself; no internal throttling is applied.
// A trailing partial frame at EOF is discarded.
type Reader struct {
	cfg    ReaderConfig
	src    io.Reader
	frames chan audio.Frame

	done    chan struct{}
	closed  sync.Once
	started bool
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewReader returns an unstarted reader source wrapping src. The config is
// normalized with defaults for any zero fields.
func NewReader(src io.Reader, cfg ReaderConfig) *Reader {
	cfg.normalize()
	return &Reader{
		cfg:    cfg,
		src:    src,
		frames: make(chan audio.Frame, 16),
		done:   make(chan struct{}),
	}
}

// Start launches the read loop.
func (r *Reader) Start(ctx context.Context) error {
	if r.started {
		return errors.New("reader source already started")
	}
	if r.src == nil {
		return errors.New("reader source: nil reader")
	}
	r.started = true
	r.wg.Add(1)
	go r.readLoop(ctx)
	return nil
}

// Frames returns the captured frame stream.
func (r *Reader) Frames() <-chan audio.Frame {
	return r.frames
}

// Format returns the configured stream format.
func (r *Reader) Format() audio.Format {
	return r.cfg.Format
}

// Err returns the terminal read error, or nil after a clean EOF.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops reading and closes the Frames channel. It does not close the
// underlying reader; the caller owns it. Safe to call more than once.
func (r *Reader) Close() error {
	r.closed.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *Reader) readLoop(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.frames)

	frameBytes := r.cfg.FrameSize * r.cfg.Format.Channels * 2
	frameDur := time.Duration(r.cfg.FrameSize) * time.Second / time.Duration(r.cfg.Format.SampleRate)
	buf := make([]byte, frameBytes)
	var elapsed time.Duration

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := io.ReadFull(r.src, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				r.mu.Lock()
				r.err = fmt.Errorf("reading pcm input: %w", err)
				r.mu.Unlock()
			}
			return
		}

		frame := audio.Frame{
			Samples:    audio.PCM16ToFloat(buf),
			SampleRate: r.cfg.Format.SampleRate,
			Channels:   r.cfg.Format.Channels,
			Timestamp:  elapsed,
		}
		elapsed += frameDur

		select {
		case r.frames <- frame:
		case <-r.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
