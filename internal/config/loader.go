package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/auricle/pkg/vad"
)

// ValidCaptureSources lists the capture source names the built-in registry
// knows about. Used by [Validate] to warn about unrecognised names.
var ValidCaptureSources = []string{"stdin", "file", "tone"}

// validSensitivities lists the recognised VAD sensitivity presets.
var validSensitivities = []vad.Sensitivity{
	vad.SensitivityLow,
	vad.SensitivityMedium,
	vad.SensitivityHigh,
	vad.SensitivityCustom,
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Capture
	if cfg.Capture.Source != "" && !slices.Contains(ValidCaptureSources, cfg.Capture.Source) {
		slog.Warn("unknown capture source name, may be a typo or externally registered",
			"name", cfg.Capture.Source,
			"known", ValidCaptureSources,
		)
	}
	if cfg.Capture.Source == "file" && cfg.Capture.DevicePath == "" {
		errs = append(errs, errors.New("capture.device_path is required when capture.source is \"file\""))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must not be negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.Channels < 0 || cfg.Capture.Channels > 8 {
		errs = append(errs, fmt.Errorf("capture.channels %d is out of range [0, 8]", cfg.Capture.Channels))
	}
	if cfg.Capture.Tone.Amplitude < 0 || cfg.Capture.Tone.Amplitude > 1 {
		errs = append(errs, fmt.Errorf("capture.tone.amplitude %.2f is out of range [0, 1]", cfg.Capture.Tone.Amplitude))
	}

	// Engine: the full bounds check happens again when the runtime config
	// is installed; validating here surfaces mistakes at load time.
	if err := cfg.EngineConfigFor().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}

	// VAD
	if cfg.VAD.Sensitivity != "" && !slices.Contains(validSensitivities, vad.Sensitivity(cfg.VAD.Sensitivity)) {
		errs = append(errs, fmt.Errorf("vad.sensitivity %q is invalid; valid values: low, medium, high, custom", cfg.VAD.Sensitivity))
	}
	if cfg.VAD.Sensitivity == string(vad.SensitivityCustom) && cfg.VAD.CustomThresholds == nil {
		errs = append(errs, errors.New("vad.custom_thresholds is required when vad.sensitivity is \"custom\""))
	}
	if cfg.VAD.Sensitivity != string(vad.SensitivityCustom) && cfg.VAD.CustomThresholds != nil {
		errs = append(errs, errors.New("vad.custom_thresholds requires vad.sensitivity \"custom\""))
	}

	// Streaming
	if cfg.Streaming.Endpoint == "" {
		errs = append(errs, errors.New("streaming.endpoint is required"))
	}
	if cfg.Streaming.APIKey == "" {
		slog.Warn("streaming.api_key is empty; the analysis service will likely reject the connection")
	}
	if cfg.Streaming.BackupEndpoint != "" && cfg.Streaming.BackupEndpoint == cfg.Streaming.Endpoint {
		slog.Warn("streaming.backup_endpoint equals the primary endpoint; failover will not add availability")
	}
	if cfg.Streaming.LatencyWarnThreshold < 0 {
		errs = append(errs, errors.New("streaming.latency_warn_threshold must not be negative"))
	}

	return errors.Join(errs...)
}
