package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/auricle/internal/bridge"
	"github.com/MrWong99/auricle/internal/engine"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/stream"
	"github.com/MrWong99/auricle/pkg/audio/capture"
)

// controller runs the three pipeline loops: frames into the engine, engine
// events into logs and metrics, engine chunks into the streamer. Each loop
// is one goroutine owned by Run's errgroup.
type controller struct {
	eng      *engine.Engine
	bridge   *bridge.Bridge
	streamer *stream.Streamer
	metrics  *observe.Metrics

	vadFilter bool

	// lastFrame is the unix-nano arrival time of the newest capture frame;
	// zero until the first frame. Read by the capture health check.
	lastFrame atomic.Int64
}

func newController(eng *engine.Engine, br *bridge.Bridge, st *stream.Streamer, m *observe.Metrics, vadFilter bool) *controller {
	return &controller{
		eng:       eng,
		bridge:    br,
		streamer:  st,
		metrics:   m,
		vadFilter: vadFilter,
	}
}

// lastFrameAge returns how long ago the newest frame arrived. ok is false
// until the first frame has been seen.
func (c *controller) lastFrameAge() (time.Duration, bool) {
	ns := c.lastFrame.Load()
	if ns == 0 {
		return 0, false
	}
	return time.Since(time.Unix(0, ns)), true
}

// feedLoop moves capture frames into the engine until the input ends or
// ctx is cancelled. A clean end of input flushes the partial chunk and
// returns errCaptureDone; a capture fault is returned as an error.
func (c *controller) feedLoop(ctx context.Context, src capture.Source) error {
	frames := src.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				if err := src.Err(); err != nil {
					return fmt.Errorf("app: capture failed: %w", err)
				}
				c.flushOnEnd()
				return errCaptureDone
			}
			c.lastFrame.Store(time.Now().UnixNano())
			if !c.eng.Feed(f) {
				slog.Debug("frame dropped at engine ingress")
			}
		}
	}
}

// flushOnEnd stops the engine with a flush so the trailing partial chunk
// is emitted before the pipeline winds down.
func (c *controller) flushOnEnd() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.bridge.Stop(ctx, true); err != nil {
		slog.Warn("flush on capture end failed", "err", err)
	}
}

// eventLoop dispatches the engine's event stream to logs and metrics. The
// concrete event set is closed; the switch covers all of it.
func (c *controller) eventLoop(ctx context.Context) error {
	events := c.eng.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *controller) handleEvent(ctx context.Context, ev engine.Event) {
	switch e := ev.(type) {
	case engine.StatusUpdate:
		slog.Info("engine state changed", "state", e.State)
		c.metrics.EngineState.Record(ctx, stateOrdinal(e.State))

	case engine.BufferWarning:
		slog.Warn("engine warning",
			"kind", e.Kind,
			"severity", e.Severity,
			"value", e.Value,
			"threshold", e.Threshold,
			"action", e.Action,
		)
		c.metrics.RecordWarning(ctx, string(e.Kind))

	case *engine.Error:
		if e.Recoverable {
			slog.Warn("engine error", "kind", e.Kind, "code", e.Code, "msg", e.Msg, "hint", e.Hint)
		} else {
			slog.Error("engine error", "kind", e.Kind, "code", e.Code, "msg", e.Msg, "hint", e.Hint)
		}

	case engine.MetricsEvent:
		s := e.Snapshot
		c.metrics.RecordFrame(ctx, s.AvgProcessingTime.Seconds())
		slog.Debug("engine metrics",
			"frames", s.FramesProcessed,
			"dropped", s.FramesDropped,
			"load", s.Load,
			"speech_ratio", s.VADSpeechRatio,
			"signal_level", s.AvgSignalLevel,
		)
	}
}

// chunkLoop forwards engine chunks to the streamer. On shutdown it drains
// whatever the engine already emitted so a flushed trailing chunk is not
// lost.
func (c *controller) chunkLoop(ctx context.Context) error {
	chunks := c.eng.Chunks()
	for {
		select {
		case <-ctx.Done():
			c.drainChunks(chunks)
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			c.forwardChunk(ctx, chunk)
		}
	}
}

// drainChunks forwards chunks already buffered by the engine without
// blocking.
func (c *controller) drainChunks(chunks <-chan engine.Chunk) {
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			c.forwardChunk(context.Background(), chunk)
		default:
			return
		}
	}
}

func (c *controller) forwardChunk(ctx context.Context, chunk engine.Chunk) {
	c.metrics.RecordChunkEmitted(ctx, chunk.VAD.Speech)

	filtered := c.vadFilter && !chunk.VAD.Speech
	if !c.streamer.Enqueue(chunk) {
		if c.streamer.Running() {
			c.metrics.RecordChunkDropped(ctx, "queue")
		}
		return
	}
	if filtered {
		c.metrics.RecordChunkDropped(ctx, "vad")
		return
	}
	c.metrics.RecordChunkAdmitted(ctx)
}

// stateOrdinal maps an engine state to its gauge value.
func stateOrdinal(s engine.State) int64 {
	switch s {
	case engine.StateInitializing:
		return 1
	case engine.StateRunning:
		return 2
	case engine.StateError:
		return 3
	default:
		return 0
	}
}
