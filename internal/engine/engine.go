// Package engine implements the real-time audio processing core of Auricle:
// a single-goroutine actor that consumes capture frames, resamples them to
// the target rate, runs voice activity detection per frame, and emits
// fixed-duration [Chunk] values plus a stream of diagnostic [Event]s.
//
// The engine goroutine owns all processing state. The control path never
// shares memory with it: configuration, lifecycle, and metrics requests
// arrive as correlated [Request] messages on the mailbox and are serviced
// strictly between frames, so a configuration swap is atomic with respect
// to frame processing. Frame ingress ([Engine.Feed]) and chunk egress are
// both non-blocking; when a consumer falls behind, the engine drops data
// and counts it rather than stalling the hot path.
//
// This package lives under internal/ because it encapsulates
// application-private processing logic and is not intended to be imported
// by external code.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/vad"
)

const (
	// maxConsecutiveErrors is the number of back-to-back frame faults that
	// escalate to a critical error and the terminal error state.
	maxConsecutiveErrors = 10

	// overrunStreakWarn is the number of consecutive soft budget overruns
	// before a high-latency warning is raised.
	overrunStreakWarn = 3

	defaultMailboxBuffer = 16
	defaultChunkBuffer   = 8
	defaultEventBuffer   = 64
	defaultFrameBuffer   = 256

	defaultMetricsInterval = 2 * time.Second
)

// Option configures an [Engine] during construction.
type Option func(*Engine)

// WithChunkBuffer sets the chunk channel capacity. The default is 8.
func WithChunkBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkBuf = n
		}
	}
}

// WithEventBuffer sets the event channel capacity. The default is 64.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.eventBuf = n
		}
	}
}

// WithMetricsInterval sets the cadence of periodic [MetricsEvent]s while
// running with metrics collection enabled. The default is 2 seconds.
func WithMetricsInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.metricsInterval = d
		}
	}
}

// Engine is the audio processing actor. Create one with [New], feed it
// frames with [Engine.Feed], and control it through the [Engine.Requests]
// mailbox. All exported methods are safe for concurrent use; the
// processing loop itself runs on one dedicated goroutine.
type Engine struct {
	mailbox chan Request
	frames  chan audio.Frame
	chunks  chan Chunk
	events  chan Event

	chunkBuf        int
	eventBuf        int
	metricsInterval time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// feedLimit is the ingress watermark (Config.BufferFrames), published
	// to Feed callers; feedDropped counts frames rejected at ingress.
	feedLimit   atomic.Int64
	feedDropped atomic.Uint64

	// ── state below is owned by the run goroutine ──

	cfg        Config
	configured bool
	state      State

	detector  *vad.Detector
	resampler *audio.Resampler

	buf          []float32 // chunk accumulation at the output rate
	chunkSamples int
	seq          uint64
	frameIndex   uint64

	chunkStart   time.Duration
	chunkProc    time.Duration
	chunkConfSum float64
	chunkFrames  int
	chunkClipped int
	chunkVAD     vad.Result

	lastTimestamp time.Duration
	haveTimestamp bool

	overrunStreak     int
	consecutiveFaults int
	prevStable        bool

	met             metricsState
	lastMetricsEmit time.Time
}

// metricsState holds the rolling aggregates behind [MetricsSnapshot].
type metricsState struct {
	procTotal time.Duration
	procMax   time.Duration

	underruns     uint64
	overruns      uint64
	frames        uint64
	droppedBase   uint64 // feedDropped value at epoch start
	droppedSeen   uint64 // feedDropped value at last pressure check
	chunksDropped uint64

	levelSum float64
	clipped  uint64
	samples  uint64

	speechFrames uint64

	activationSum    float64
	activationFlips  uint64
	voteStreakOrigin uint64 // frame index of the first vote in the current streak
}

// New creates an engine and starts its processing goroutine. The engine is
// idle and unconfigured until it receives a configure (or start, which
// installs [DefaultConfig]) request. Call [Engine.Close] to stop the
// goroutine and close the chunk and event channels.
func New(opts ...Option) *Engine {
	e := &Engine{
		chunkBuf:        defaultChunkBuffer,
		eventBuf:        defaultEventBuffer,
		metricsInterval: defaultMetricsInterval,
		done:            make(chan struct{}),
		state:           StateIdle,
	}
	for _, o := range opts {
		o(e)
	}
	e.mailbox = make(chan Request, defaultMailboxBuffer)
	e.frames = make(chan audio.Frame, defaultFrameBuffer)
	e.chunks = make(chan Chunk, e.chunkBuf)
	e.events = make(chan Event, e.eventBuf)

	e.wg.Add(1)
	go e.run()
	return e
}

// Requests returns the control mailbox. See [Request] for the message
// contract; callers are expected to go through the bridge, which adds
// correlation IDs and timeouts.
func (e *Engine) Requests() chan<- Request {
	return e.mailbox
}

// Chunks returns the emitted chunk stream. Closed by [Engine.Close].
func (e *Engine) Chunks() <-chan Chunk {
	return e.chunks
}

// Events returns the diagnostic event stream. Closed by [Engine.Close].
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Feed offers one capture frame to the engine without blocking. It returns
// false — and the frame is counted as dropped — when the ingress buffer is
// at its configured watermark. Safe to call from the capture goroutine at
// any time; frames fed while the engine is not running are discarded.
func (e *Engine) Feed(f audio.Frame) bool {
	if limit := int(e.feedLimit.Load()); limit > 0 && len(e.frames) >= limit {
		e.feedDropped.Add(1)
		return false
	}
	select {
	case e.frames <- f:
		return true
	default:
		e.feedDropped.Add(1)
		return false
	}
}

// Close stops the processing goroutine and closes the chunk and event
// channels. Safe to call more than once; subsequent calls return nil.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		close(e.chunks)
		close(e.events)
	})
	return nil
}

// ─── Run loop ────────────────────────────────────────────────────────────────

// run services the mailbox and, while running, the frame stream. Frame
// processing is strictly sequential: hysteresis and chunk accumulation are
// order-dependent, so there is never more than one frame in flight.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		if e.state == StateRunning {
			select {
			case req := <-e.mailbox:
				e.handle(req)
			case f := <-e.frames:
				e.safeProcessFrame(f)
			case <-e.done:
				return
			}
			continue
		}
		select {
		case req := <-e.mailbox:
			e.handle(req)
		case <-e.frames:
			// Not running; discard quietly.
		case <-e.done:
			return
		}
	}
}

// handle services one control request between frames.
func (e *Engine) handle(req Request) {
	resp := Response{ID: req.ID}
	switch req.Op {
	case OpConfigure:
		resp.Err = e.configure(req.Config)
	case OpStart:
		resp.Err = e.start()
	case OpStop:
		e.stop(req.Flush)
	case OpUpdateSettings:
		resp.Err = e.updateSettings(req.Settings)
	case OpResetBuffers:
		e.resetBuffers()
	case OpMetrics:
		snap := e.snapshot()
		resp.Metrics = &snap
	case OpState:
		// State is filled below for every response.
	default:
		resp.Err = &Error{
			Kind:        ErrConfiguration,
			Severity:    SeverityError,
			Msg:         fmt.Sprintf("unknown operation %q", req.Op),
			Code:        "unknown-op",
			Recoverable: true,
		}
	}
	resp.State = e.state
	if req.Reply != nil {
		select {
		case req.Reply <- resp:
		default:
			// Caller stopped listening (timed out); drop the reply.
		}
	}
}

// configure validates and atomically installs a new configuration. On
// rejection the prior configuration stays active in full — there is no
// partial apply. A successful configure clears the terminal error state.
func (e *Engine) configure(cfg *Config) error {
	if cfg == nil {
		return &Error{
			Kind: ErrConfiguration, Severity: SeverityError,
			Msg: "configure request without config", Code: "nil-config",
			Recoverable: true,
		}
	}
	if err := cfg.Validate(); err != nil {
		return &Error{
			Kind: ErrConfiguration, Severity: SeverityError,
			Msg: err.Error(), Code: "invalid-config",
			Recoverable: true, Hint: "fix the rejected fields and reconfigure",
		}
	}

	detector, err := vad.NewDetector(cfg.thresholds())
	if err != nil {
		return &Error{
			Kind: ErrVAD, Severity: SeverityError,
			Msg: err.Error(), Code: "invalid-thresholds",
			Recoverable: true,
		}
	}

	wasRunning := e.state == StateRunning
	e.cfg = *cfg
	e.configured = true
	e.detector = detector
	e.feedLimit.Store(int64(min(cfg.BufferFrames, defaultFrameBuffer)))

	if e.state == StateError {
		e.setState(StateIdle)
	}
	if wasRunning {
		// Rates or chunk sizing may have changed; restart the pipeline
		// state under the new epoch. The partial chunk is discarded.
		e.initPipeline()
	}
	if e.cfg.Debug {
		slog.Debug("engine configured",
			"input_rate", cfg.InputSampleRate,
			"output_rate", cfg.OutputSampleRate,
			"chunk_duration", cfg.ChunkDuration,
			"vad", cfg.VADEnabled,
		)
	}
	return nil
}

// start moves the engine from idle through initializing to running. An
// unconfigured engine installs [DefaultConfig] first. Starting a running
// engine is a no-op; starting from the error state is rejected.
func (e *Engine) start() error {
	switch e.state {
	case StateRunning:
		return nil
	case StateError:
		return &Error{
			Kind: ErrConfiguration, Severity: SeverityError,
			Msg: "engine is in error state", Code: "start-in-error",
			Recoverable: true, Hint: "reconfigure before starting",
		}
	}
	if !e.configured {
		if err := e.configure(ptr(DefaultConfig())); err != nil {
			return err
		}
	}

	e.setState(StateInitializing)
	e.initPipeline()
	base := e.feedDropped.Load()
	e.met = metricsState{droppedBase: base, droppedSeen: base}
	e.lastMetricsEmit = time.Now()
	e.setState(StateRunning)
	return nil
}

// stop returns the engine to idle. The partially filled chunk buffer is
// discarded unless flush is set, in which case it is emitted as a short
// final chunk. Stopping an engine that is not running is a no-op, so
// repeated stops are safe.
func (e *Engine) stop(flush bool) {
	if e.state != StateRunning && e.state != StateInitializing {
		return
	}
	if flush && len(e.buf) > 0 {
		e.emitChunk(len(e.buf))
	}
	e.buf = nil
	e.haveTimestamp = false
	e.setState(StateIdle)
}

// updateSettings applies a partial configuration change between frames.
// Threshold updates are validated before any field is touched; a rejected
// update leaves both the config and the detector unchanged.
func (e *Engine) updateSettings(s *Settings) error {
	if s == nil {
		return nil
	}
	if s.VADThresholds != nil {
		t := vad.Thresholds{
			Energy:                s.VADThresholds.Energy,
			Frequency:             s.VADThresholds.Frequency,
			Flatness:              s.VADThresholds.Flatness,
			Pitch:                 s.VADThresholds.Pitch,
			SilenceToSpeechFrames: s.VADThresholds.SilenceToSpeechFrames,
			SpeechToSilenceFrames: s.VADThresholds.SpeechToSilenceFrames,
		}
		if err := e.detector.SetThresholds(t); err != nil {
			return &Error{
				Kind: ErrConfiguration, Severity: SeverityError,
				Msg: err.Error(), Code: "invalid-thresholds",
				Recoverable: true,
			}
		}
		e.cfg.Sensitivity = vad.SensitivityCustom
		e.cfg.CustomThresholds = &t
	}
	if s.VADEnabled != nil {
		e.cfg.VADEnabled = *s.VADEnabled
	}
	if s.MaxProcessingTime != nil && *s.MaxProcessingTime > 0 {
		e.cfg.MaxProcessingTime = *s.MaxProcessingTime
	}
	if s.Debug != nil {
		e.cfg.Debug = *s.Debug
	}
	return nil
}

// resetBuffers discards the accumulated partial chunk and zeroes the
// rolling metrics. Used for recovery after a buffer fault; the sequence
// counter is deliberately preserved so downstream correlation stays intact.
func (e *Engine) resetBuffers() {
	e.buf = e.buf[:0]
	e.resetChunkAccumulators()
	if e.resampler != nil {
		e.resampler.Reset()
	}
	e.haveTimestamp = false
	e.consecutiveFaults = 0
	e.overrunStreak = 0
	base := e.feedDropped.Load()
	e.met = metricsState{droppedBase: base, droppedSeen: base}
}

// initPipeline rebuilds the per-epoch processing state from the installed
// configuration.
func (e *Engine) initPipeline() {
	e.chunkSamples = int(int64(e.cfg.OutputSampleRate) * int64(e.cfg.ChunkDuration) / int64(time.Second))
	if e.chunkSamples < 1 {
		e.chunkSamples = 1
	}
	e.buf = make([]float32, 0, e.chunkSamples+e.cfg.FrameSize)
	e.resampler = audio.NewResampler(e.cfg.InputSampleRate, e.cfg.OutputSampleRate)
	e.detector.Reset()
	e.seq = 0
	e.frameIndex = 0
	e.chunkStart = 0
	e.resetChunkAccumulators()
	e.haveTimestamp = false
	e.overrunStreak = 0
	e.consecutiveFaults = 0
	e.prevStable = false
}

func (e *Engine) resetChunkAccumulators() {
	e.chunkProc = 0
	e.chunkConfSum = 0
	e.chunkFrames = 0
	e.chunkClipped = 0
	e.chunkVAD = vad.Result{}
}

// setState transitions the engine state and publishes a status event.
func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.emitEvent(StatusUpdate{State: s, At: time.Now()})
}

// ─── Hot path ────────────────────────────────────────────────────────────────

// safeProcessFrame runs one frame through the pipeline with per-frame
// fault containment: a panic or reported fault becomes an error event and
// the loop continues with the next frame. A streak of consecutive faults
// escalates to a critical error and the terminal error state.
func (e *Engine) safeProcessFrame(f audio.Frame) {
	faulted := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				faulted = true
				e.emitEvent(&Error{
					Kind: ErrProcessing, Severity: SeverityError,
					Msg: fmt.Sprintf("frame processing panic: %v", r), Code: "frame-panic",
					Recoverable: true, Hint: "reset buffers if faults persist",
					Frame: e.frameIndex, BufferSize: len(f.Samples),
					SampleRate: f.SampleRate, Channels: f.Channels,
				})
			}
		}()
		faulted = !e.processFrame(f)
	}()

	if faulted {
		e.consecutiveFaults++
		if e.consecutiveFaults >= maxConsecutiveErrors {
			e.emitEvent(&Error{
				Kind: ErrProcessing, Severity: SeverityCritical,
				Msg:  fmt.Sprintf("%d consecutive frame faults", e.consecutiveFaults),
				Code: "fault-streak", Recoverable: false,
				Hint:  "reconfigure and restart the engine",
				Frame: e.frameIndex,
			})
			e.setState(StateError)
		}
		return
	}
	e.consecutiveFaults = 0
}

// processFrame is the hot path: sanitize, downmix, VAD, resample,
// accumulate, emit at chunk boundaries. Returns false when the frame was
// rejected as a fault.
func (e *Engine) processFrame(f audio.Frame) bool {
	start := time.Now()
	e.frameIndex++

	if f.SampleRate != e.cfg.InputSampleRate {
		e.emitEvent(&Error{
			Kind: ErrResampling, Severity: SeverityError,
			Msg:  fmt.Sprintf("frame rate %dHz does not match configured %dHz", f.SampleRate, e.cfg.InputSampleRate),
			Code: "rate-mismatch", Recoverable: true, Hint: "reconfigure for the device rate",
			Frame: e.frameIndex, BufferSize: len(f.Samples),
			SampleRate: f.SampleRate, Channels: f.Channels,
		})
		return false
	}
	if len(f.Samples) == 0 {
		e.emitEvent(&Error{
			Kind: ErrBuffer, Severity: SeverityWarning,
			Msg: "empty frame", Code: "empty-frame", Recoverable: true,
			Frame: e.frameIndex, SampleRate: f.SampleRate, Channels: f.Channels,
		})
		return false
	}

	e.checkTimestampGap(f)
	e.checkIngressPressure()

	audio.Sanitize(f.Samples)
	mono := audio.Downmix(f.Samples, max(f.Channels, 1))

	var vr vad.Result
	if e.cfg.VADEnabled {
		vr = e.detector.Process(mono, f.SampleRate)
	} else {
		vr.RMS = audio.RMS(mono)
	}
	e.trackActivation(vr)

	out := e.resampler.Process(mono)
	e.buf = append(e.buf, out...)

	clipped := audio.CountClipped(mono)

	// Chunk accumulators.
	e.chunkVAD = vr
	e.chunkConfSum += vr.Confidence
	e.chunkFrames++
	e.chunkClipped += clipped

	// Rolling metrics.
	e.met.frames++
	e.met.levelSum += vr.RMS
	e.met.clipped += uint64(clipped)
	e.met.samples += uint64(len(mono))
	if vr.Speech {
		e.met.speechFrames++
	}

	for len(e.buf) >= e.chunkSamples {
		e.emitChunk(e.chunkSamples)
	}

	elapsed := time.Since(start)
	e.chunkProc += elapsed
	e.met.procTotal += elapsed
	if elapsed > e.met.procMax {
		e.met.procMax = elapsed
	}
	e.checkBudget(elapsed)
	e.maybeEmitMetrics()
	return true
}

// checkTimestampGap raises an underrun warning when the capture timestamps
// jump by more than a frame, meaning the device delivered late or skipped.
func (e *Engine) checkTimestampGap(f audio.Frame) {
	expected := f.Duration()
	if e.haveTimestamp && expected > 0 && f.Timestamp > e.lastTimestamp+2*expected {
		e.met.underruns++
		e.emitEvent(BufferWarning{
			Kind: WarnUnderrun, Severity: SeverityWarning,
			Value:     (f.Timestamp - e.lastTimestamp).Seconds(),
			Threshold: (2 * expected).Seconds(),
			Action:    "check the capture device for stalls",
		})
	}
	e.lastTimestamp = f.Timestamp
	e.haveTimestamp = true
}

// checkIngressPressure accounts frames dropped at Feed and warns on a
// filling ingress buffer.
func (e *Engine) checkIngressPressure() {
	dropped := e.feedDropped.Load()
	if dropped > e.met.droppedSeen {
		e.met.overruns += dropped - e.met.droppedSeen
		e.met.droppedSeen = dropped
		e.emitEvent(BufferWarning{
			Kind: WarnOverrun, Severity: SeverityWarning,
			Value:     float64(dropped),
			Threshold: float64(e.cfg.BufferFrames),
			Action:    "consumer is too slow; consider a larger frame buffer",
		})
	}
	if limit := e.cfg.BufferFrames; limit > 0 && len(e.frames)*4 >= limit*3 {
		e.emitEvent(BufferWarning{
			Kind: WarnMemoryPressure, Severity: SeverityWarning,
			Value:     float64(len(e.frames)),
			Threshold: float64(limit),
			Action:    "ingress buffer nearly full",
		})
	}
}

// checkBudget tracks the soft per-frame time budget. Soft overruns never
// abort processing: a streak raises a high-latency warning, and sustained
// load at or beyond the budget raises a cpu-overload warning.
func (e *Engine) checkBudget(elapsed time.Duration) {
	budget := e.cfg.MaxProcessingTime
	if budget <= 0 {
		return
	}
	if elapsed <= budget {
		e.overrunStreak = 0
		return
	}
	e.overrunStreak++
	if e.overrunStreak == overrunStreakWarn {
		e.emitEvent(BufferWarning{
			Kind: WarnHighLatency, Severity: SeverityWarning,
			Value:     elapsed.Seconds(),
			Threshold: budget.Seconds(),
			Action:    "reduce frame size or chunk duration",
		})
	}
	if e.met.frames > 0 {
		load := (e.met.procTotal / time.Duration(e.met.frames)).Seconds() / budget.Seconds()
		if load >= 1 && e.overrunStreak >= overrunStreakWarn {
			e.emitEvent(BufferWarning{
				Kind: WarnCPUOverload, Severity: SeverityError,
				Value:     load,
				Threshold: 1,
				Action:    "engine cannot sustain real time; lower rates or sensitivity",
			})
		}
	}
}

// trackActivation measures VAD activation latency: the number of frames
// between the first speech vote of a streak and the stable flip to speech.
func (e *Engine) trackActivation(vr vad.Result) {
	if vr.SpeechFrames == 1 {
		e.met.voteStreakOrigin = e.frameIndex
	}
	if vr.Speech && !e.prevStable && e.met.voteStreakOrigin > 0 {
		e.met.activationSum += float64(e.frameIndex - e.met.voteStreakOrigin + 1)
		e.met.activationFlips++
		e.met.voteStreakOrigin = 0
	}
	e.prevStable = vr.Speech
}

// emitChunk slices n samples off the front of the accumulation buffer and
// publishes them as one chunk. Delivery must not block the hot path: when
// the chunk channel is full the oldest queued chunk is dropped to make
// room, counted as an overrun.
func (e *Engine) emitChunk(n int) {
	samples := make([]float32, n)
	copy(samples, e.buf[:n])
	e.buf = append(e.buf[:0], e.buf[n:]...)

	e.seq++
	dur := time.Duration(n) * time.Second / time.Duration(e.cfg.OutputSampleRate)

	rollup := e.chunkVAD
	if e.chunkFrames > 0 {
		rollup.Confidence = e.chunkConfSum / float64(e.chunkFrames)
	}

	c := Chunk{
		Samples:        samples,
		InputRate:      e.cfg.InputSampleRate,
		OutputRate:     e.cfg.OutputSampleRate,
		Sequence:       e.seq,
		Start:          e.chunkStart,
		Duration:       dur,
		VAD:            rollup,
		RMS:            audio.RMS(samples),
		Clipped:        e.chunkClipped,
		ProcessingTime: e.chunkProc,
	}
	e.chunkStart += dur
	e.resetChunkAccumulators()

	if e.cfg.Debug {
		slog.Debug("chunk emitted",
			"sequence", c.Sequence,
			"duration", c.Duration,
			"speech", c.VAD.Speech,
			"confidence", c.VAD.Confidence,
		)
	}

	select {
	case e.chunks <- c:
		return
	default:
	}
	// Full: make room by dropping the oldest queued chunk.
	select {
	case <-e.chunks:
		e.met.overruns++
		e.emitEvent(BufferWarning{
			Kind: WarnOverrun, Severity: SeverityWarning,
			Value:     float64(cap(e.chunks)),
			Threshold: float64(cap(e.chunks)),
			Action:    "chunk consumer is too slow; oldest chunk dropped",
		})
	default:
	}
	select {
	case e.chunks <- c:
	default:
		e.met.chunksDropped++
	}
}

// emitEvent publishes a diagnostic event without blocking; events are
// dropped when the consumer falls behind.
func (e *Engine) emitEvent(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// maybeEmitMetrics publishes a periodic metrics snapshot while collection
// is enabled.
func (e *Engine) maybeEmitMetrics() {
	if !e.cfg.CollectMetrics {
		return
	}
	now := time.Now()
	if now.Sub(e.lastMetricsEmit) < e.metricsInterval {
		return
	}
	e.lastMetricsEmit = now
	e.emitEvent(MetricsEvent{Snapshot: e.snapshot()})
}

// snapshot assembles a [MetricsSnapshot] from the rolling state. Called on
// the engine goroutine only; the snapshot itself is a plain value.
func (e *Engine) snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		MaxProcessingTime: e.met.procMax,
		Underruns:         e.met.underruns,
		Overruns:          e.met.overruns,
		FramesProcessed:   e.met.frames,
		FramesDropped:     e.feedDropped.Load() - e.met.droppedBase + e.met.chunksDropped,
		MemoryBytes:       uint64(cap(e.buf)+cap(e.frames)*e.cfg.FrameSize) * 4,
	}
	if e.met.frames > 0 {
		s.AvgProcessingTime = e.met.procTotal / time.Duration(e.met.frames)
		s.AvgSignalLevel = e.met.levelSum / float64(e.met.frames)
		s.VADSpeechRatio = float64(e.met.speechFrames) / float64(e.met.frames)
	}
	if e.cfg.MaxProcessingTime > 0 {
		s.Load = s.AvgProcessingTime.Seconds() / e.cfg.MaxProcessingTime.Seconds()
	}
	if e.met.samples > 0 {
		s.ClipRate = float64(e.met.clipped) / float64(e.met.samples)
	}
	if e.met.activationFlips > 0 {
		s.VADActivationLatency = e.met.activationSum / float64(e.met.activationFlips)
	}
	if e.cfg.BufferFrames > 0 {
		s.BufferUtilization = float64(len(e.frames)) / float64(e.cfg.BufferFrames)
		if s.BufferUtilization > 1 {
			s.BufferUtilization = 1
		}
	}
	return s
}

func ptr[T any](v T) *T {
	return &v
}
