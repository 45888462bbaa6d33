// Package config provides the configuration schema, loader, file watcher
// and component registry for the Auricle capture agent.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/auricle/internal/engine"
	"github.com/MrWong99/auricle/pkg/vad"
)

// LogLevel controls log verbosity for the agent.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Slog maps l to the corresponding slog level. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration with YAML support for strings like "400ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the agent.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Engine    EngineConfig    `yaml:"engine"`
	VAD       VADConfig       `yaml:"vad"`
	Streaming StreamingConfig `yaml:"streaming"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the ops listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops listener (health + metrics)
	// binds to (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects and parameterizes the audio source.
type CaptureConfig struct {
	// Source selects the registered capture source implementation
	// (e.g., "stdin", "file", "tone").
	Source string `yaml:"source"`

	// DevicePath is the file or device the "file" source reads PCM16 from.
	// Ignored by other sources.
	DevicePath string `yaml:"device_path"`

	// SampleRate is the capture rate in Hz (e.g., 48000).
	SampleRate int `yaml:"sample_rate"`

	// Channels is the captured channel count. Multi-channel input is
	// downmixed to mono before analysis.
	Channels int `yaml:"channels"`

	// FrameSize is the number of samples per channel per frame.
	FrameSize int `yaml:"frame_size"`

	// Tone parameterizes the synthetic "tone" source used for smoke tests.
	Tone ToneSourceConfig `yaml:"tone"`
}

// ToneSourceConfig parameterizes the synthetic tone capture source.
type ToneSourceConfig struct {
	// Frequency of the sine wave in Hz. Defaults to 440.
	Frequency float64 `yaml:"frequency"`

	// Amplitude in [0, 1]. Defaults to 0.3.
	Amplitude float64 `yaml:"amplitude"`
}

// EngineConfig holds the processing pipeline settings.
type EngineConfig struct {
	// OutputSampleRate is the rate chunks are resampled to in Hz
	// (e.g., 16000). Must not exceed the capture rate.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// ChunkDuration is the target duration of emitted chunks.
	ChunkDuration Duration `yaml:"chunk_duration"`

	// BufferFrames is the ingress watermark: frames queued beyond it are
	// dropped rather than stalling capture.
	BufferFrames int `yaml:"buffer_frames"`

	// MaxProcessingTime is the per-frame processing budget.
	MaxProcessingTime Duration `yaml:"max_processing_time"`

	// CollectMetrics enables periodic engine metrics events. Defaults to
	// true when omitted.
	CollectMetrics *bool `yaml:"collect_metrics"`

	// Debug enables verbose per-frame logging.
	Debug bool `yaml:"debug"`
}

// VADConfig holds the voice activity detection settings.
type VADConfig struct {
	// Enabled toggles voice activity detection. Defaults to true when
	// omitted; when false every chunk is classified by signal level only.
	Enabled *bool `yaml:"enabled"`

	// Sensitivity selects a threshold preset: low, medium, high, custom.
	Sensitivity string `yaml:"sensitivity"`

	// CustomThresholds must be set exactly when Sensitivity is "custom".
	CustomThresholds *ThresholdsConfig `yaml:"custom_thresholds"`
}

// ThresholdsConfig mirrors the detector thresholds for YAML.
type ThresholdsConfig struct {
	Energy                float64 `yaml:"energy"`
	Frequency             float64 `yaml:"frequency"`
	Flatness              float64 `yaml:"flatness"`
	Pitch                 float64 `yaml:"pitch"`
	SilenceToSpeechFrames int     `yaml:"silence_to_speech_frames"`
	SpeechToSilenceFrames int     `yaml:"speech_to_silence_frames"`
}

// StreamingConfig holds the remote analysis connection settings.
type StreamingConfig struct {
	// Endpoint is the primary analysis service WebSocket URL
	// (e.g., "wss://audio.example.com/v1/stream").
	Endpoint string `yaml:"endpoint"`

	// BackupEndpoint is an optional failover URL tried when the primary
	// circuit opens.
	BackupEndpoint string `yaml:"backup_endpoint"`

	// APIKey authenticates against the analysis service.
	APIKey string `yaml:"api_key"`

	// LatencyWarnThreshold is the round-trip latency above which a warning
	// is logged. Defaults to 500ms.
	LatencyWarnThreshold Duration `yaml:"latency_warn_threshold"`

	// QualityInterval is how often network quality is re-derived.
	// Defaults to 5s.
	QualityInterval Duration `yaml:"quality_interval"`

	// VADFilter enables admission control: non-speech chunks are dropped
	// locally instead of sent.
	VADFilter bool `yaml:"vad_filter"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	// MetricsEnabled toggles the OpenTelemetry metrics pipeline.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// ServiceName overrides the service name reported in telemetry.
	// Defaults to "auricle".
	ServiceName string `yaml:"service_name"`
}

// ResolveThresholds returns the detection thresholds a VAD section selects:
// the custom values when present, otherwise the sensitivity preset.
func ResolveThresholds(v VADConfig) vad.Thresholds {
	if t := v.CustomThresholds; t != nil {
		return vad.Thresholds{
			Energy:                t.Energy,
			Frequency:             t.Frequency,
			Flatness:              t.Flatness,
			Pitch:                 t.Pitch,
			SilenceToSpeechFrames: t.SilenceToSpeechFrames,
			SpeechToSilenceFrames: t.SpeechToSilenceFrames,
		}
	}
	return vad.ForSensitivity(vad.Sensitivity(v.Sensitivity))
}

// EngineConfigFor translates the YAML schema into the engine's runtime
// configuration, filling unset fields with engine defaults.
func (c *Config) EngineConfigFor() engine.Config {
	ec := engine.DefaultConfig()
	if c.Capture.SampleRate > 0 {
		ec.InputSampleRate = c.Capture.SampleRate
	}
	if c.Capture.FrameSize > 0 {
		ec.FrameSize = c.Capture.FrameSize
	}
	if c.Engine.OutputSampleRate > 0 {
		ec.OutputSampleRate = c.Engine.OutputSampleRate
	}
	if c.Engine.ChunkDuration > 0 {
		ec.ChunkDuration = c.Engine.ChunkDuration.Std()
	}
	if c.Engine.BufferFrames > 0 {
		ec.BufferFrames = c.Engine.BufferFrames
	}
	if c.Engine.MaxProcessingTime > 0 {
		ec.MaxProcessingTime = c.Engine.MaxProcessingTime.Std()
	}
	if c.Engine.CollectMetrics != nil {
		ec.CollectMetrics = *c.Engine.CollectMetrics
	}
	ec.Debug = c.Engine.Debug
	if c.VAD.Enabled != nil {
		ec.VADEnabled = *c.VAD.Enabled
	}
	if c.VAD.Sensitivity != "" {
		ec.Sensitivity = vad.Sensitivity(c.VAD.Sensitivity)
	}
	if t := c.VAD.CustomThresholds; t != nil {
		ec.CustomThresholds = &vad.Thresholds{
			Energy:                t.Energy,
			Frequency:             t.Frequency,
			Flatness:              t.Flatness,
			Pitch:                 t.Pitch,
			SilenceToSpeechFrames: t.SilenceToSpeechFrames,
			SpeechToSilenceFrames: t.SpeechToSilenceFrames,
		}
	}
	return ec
}
