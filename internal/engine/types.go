package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/auricle/pkg/vad"
)

// Supported sample rate and sizing bounds enforced by [Config.Validate].
const (
	minSampleRate = 8000
	maxSampleRate = 192000

	minFrameSize = 32
	maxFrameSize = 8192

	minChunkDuration = 50 * time.Millisecond
	maxChunkDuration = 10 * time.Second
)

// State is the engine's processing state. Transitions are driven only by
// the engine goroutine; control-path callers observe state through request
// responses and [StatusUpdate] events.
type State string

const (
	// StateIdle means the engine is configured (or freshly created) and not
	// processing frames.
	StateIdle State = "idle"

	// StateInitializing is the transient state while buffers are allocated
	// and detectors are reset during start.
	StateInitializing State = "initializing"

	// StateRunning means the engine is consuming frames and emitting chunks.
	StateRunning State = "running"

	// StateError is the terminal fault state after a critical error. Only
	// an explicit configure followed by start leaves it.
	StateError State = "error"
)

// IsValid reports whether s is a recognised engine state.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateInitializing, StateRunning, StateError:
		return true
	}
	return false
}

// Config is the immutable processing configuration for one engine epoch.
// Replacing it through a configure request is an atomic swap applied
// between frames; in-flight frame processing never observes a partial
// update.
type Config struct {
	// InputSampleRate is the capture device's native rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the rate chunks are resampled to in Hz. Must not
	// exceed InputSampleRate.
	OutputSampleRate int

	// FrameSize is the expected number of per-channel samples per capture
	// callback. Used for buffer sizing and underrun detection.
	FrameSize int

	// ChunkDuration is the fixed duration of each emitted chunk.
	ChunkDuration time.Duration

	// BufferFrames is the capacity of the frame ingress buffer. Frames
	// arriving while the buffer is full are dropped and counted.
	BufferFrames int

	// VADEnabled runs voice activity detection per frame. When false every
	// chunk reports a zero-confidence non-speech result.
	VADEnabled bool

	// Sensitivity selects the VAD threshold preset. SensitivityCustom
	// requires CustomThresholds to be set.
	Sensitivity vad.Sensitivity

	// CustomThresholds overrides the preset when Sensitivity is custom.
	// Must be nil for every other preset.
	CustomThresholds *vad.Thresholds

	// CollectMetrics enables per-frame metrics aggregation and periodic
	// metrics events.
	CollectMetrics bool

	// MaxProcessingTime is the per-frame soft budget. Exceeding it raises
	// warnings but never aborts processing.
	MaxProcessingTime time.Duration

	// Debug enables verbose per-chunk logging.
	Debug bool
}

// DefaultConfig returns the configuration used when no explicit configure
// request preceded start: 48kHz capture downsampled to 16kHz, 400ms chunks,
// medium VAD sensitivity.
func DefaultConfig() Config {
	return Config{
		InputSampleRate:   48000,
		OutputSampleRate:  16000,
		FrameSize:         960,
		ChunkDuration:     400 * time.Millisecond,
		BufferFrames:      32,
		VADEnabled:        true,
		Sensitivity:       vad.SensitivityMedium,
		CollectMetrics:    true,
		MaxProcessingTime: 2700 * time.Microsecond,
	}
}

// Validate checks every field against its supported bounds. All violations
// are reported, not just the first. A config that fails validation is never
// installed; the engine keeps its prior configuration.
func (c Config) Validate() error {
	var errs []error
	if c.InputSampleRate < minSampleRate || c.InputSampleRate > maxSampleRate {
		errs = append(errs, fmt.Errorf("input sample rate %d outside [%d, %d]",
			c.InputSampleRate, minSampleRate, maxSampleRate))
	}
	if c.OutputSampleRate < minSampleRate || c.OutputSampleRate > maxSampleRate {
		errs = append(errs, fmt.Errorf("output sample rate %d outside [%d, %d]",
			c.OutputSampleRate, minSampleRate, maxSampleRate))
	}
	if c.OutputSampleRate > c.InputSampleRate {
		errs = append(errs, fmt.Errorf("output sample rate %d exceeds input sample rate %d",
			c.OutputSampleRate, c.InputSampleRate))
	}
	if c.FrameSize < minFrameSize || c.FrameSize > maxFrameSize {
		errs = append(errs, fmt.Errorf("frame size %d outside [%d, %d]",
			c.FrameSize, minFrameSize, maxFrameSize))
	}
	if c.ChunkDuration < minChunkDuration || c.ChunkDuration > maxChunkDuration {
		errs = append(errs, fmt.Errorf("chunk duration %s outside [%s, %s]",
			c.ChunkDuration, minChunkDuration, maxChunkDuration))
	}
	if c.BufferFrames < 1 {
		errs = append(errs, fmt.Errorf("buffer frames must be at least 1, got %d", c.BufferFrames))
	}
	if c.MaxProcessingTime <= 0 {
		errs = append(errs, fmt.Errorf("max processing time must be positive, got %s", c.MaxProcessingTime))
	}
	if c.Sensitivity != "" && !c.Sensitivity.IsValid() {
		errs = append(errs, fmt.Errorf("sensitivity %q is invalid; valid values: low, medium, high, custom", c.Sensitivity))
	}
	if c.Sensitivity == vad.SensitivityCustom && c.CustomThresholds == nil {
		errs = append(errs, errors.New("sensitivity custom requires custom thresholds"))
	}
	if c.Sensitivity != vad.SensitivityCustom && c.CustomThresholds != nil {
		errs = append(errs, fmt.Errorf("custom thresholds set but sensitivity is %q", c.Sensitivity))
	}
	if c.CustomThresholds != nil {
		if err := c.CustomThresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("custom thresholds: %w", err))
		}
	}
	return errors.Join(errs...)
}

// thresholds resolves the active VAD thresholds for this config.
func (c Config) thresholds() vad.Thresholds {
	if c.Sensitivity == vad.SensitivityCustom && c.CustomThresholds != nil {
		return *c.CustomThresholds
	}
	return vad.ForSensitivity(c.Sensitivity)
}

// ErrorKind classifies an engine [Error]. The set is closed; consumers
// switch exhaustively over these values.
type ErrorKind string

const (
	ErrConfiguration ErrorKind = "configuration"
	ErrProcessing    ErrorKind = "processing"
	ErrBuffer        ErrorKind = "buffer"
	ErrResampling    ErrorKind = "resampling"
	ErrVAD           ErrorKind = "vad"
	ErrMemory        ErrorKind = "memory"
	ErrPerformance   ErrorKind = "performance"
)

// Severity grades errors and warnings.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is a tagged engine fault. Recoverable errors are reported as events
// and processing continues; critical errors move the engine to
// [StateError].
type Error struct {
	Kind        ErrorKind
	Severity    Severity
	Msg         string
	Code        string
	Recoverable bool

	// Hint is an optional recovery action ("reset buffers", "reconfigure").
	Hint string

	// Processing context at the time of failure.
	Frame      uint64
	BufferSize int
	SampleRate int
	Channels   int
}

// Error formats the fault as "kind/code: msg".
func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s/%s: %s", e.Kind, e.Code, e.Msg)
}

// WarningKind classifies a [BufferWarning].
type WarningKind string

const (
	WarnUnderrun       WarningKind = "underrun"
	WarnOverrun        WarningKind = "overrun"
	WarnHighLatency    WarningKind = "high-latency"
	WarnMemoryPressure WarningKind = "memory-pressure"
	WarnCPUOverload    WarningKind = "cpu-overload"
)

// BufferWarning is an advisory, non-fatal condition raised by the hot path.
type BufferWarning struct {
	Kind     WarningKind
	Severity Severity

	// Value is the measured quantity and Threshold the limit it crossed.
	// Units depend on Kind (seconds for latency, counts for buffers).
	Value     float64
	Threshold float64

	// Action is the recommended operator response.
	Action string
}

// StatusUpdate reports an engine state transition.
type StatusUpdate struct {
	State State
	At    time.Time
}

// MetricsSnapshot is a point-in-time copy of the engine's rolling
// aggregates. Reset at start, updated every frame.
type MetricsSnapshot struct {
	// AvgProcessingTime and MaxProcessingTime cover the hot path per frame.
	AvgProcessingTime time.Duration
	MaxProcessingTime time.Duration

	// Load is average processing time divided by the per-frame budget.
	// Sustained values at or above 1.0 mean the engine cannot keep up.
	Load float64

	Underruns         uint64
	Overruns          uint64
	BufferUtilization float64

	FramesProcessed uint64
	FramesDropped   uint64

	// AvgSignalLevel is the running mean RMS of processed frames; ClipRate
	// is clipped samples per processed sample.
	AvgSignalLevel float64
	ClipRate       float64

	// VADSpeechRatio is the fraction of frames with a stable speech
	// decision. VADActivationLatency is the average number of frames
	// between the first speech vote and the stable flip.
	VADSpeechRatio       float64
	VADActivationLatency float64

	// MemoryBytes estimates the engine's buffer footprint.
	MemoryBytes uint64
}

// Event is one entry on the engine's event stream. The set of concrete
// types is closed: [StatusUpdate], [BufferWarning], [*Error], and
// [MetricsEvent]. Consumers dispatch with a type switch over exactly these
// four.
type Event interface {
	isEvent()
}

func (StatusUpdate) isEvent()  {}
func (BufferWarning) isEvent() {}
func (*Error) isEvent()        {}

// MetricsEvent carries a periodic metrics snapshot on the event stream.
type MetricsEvent struct {
	Snapshot MetricsSnapshot
}

func (MetricsEvent) isEvent() {}
