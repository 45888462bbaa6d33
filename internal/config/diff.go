package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when the VAD enable flag, sensitivity preset or
	// custom thresholds differ. The new values are applied to the engine
	// between processing cycles.
	VADChanged bool
	NewVAD     VADConfig

	// LatencyWarnChanged is true when the streaming latency warning
	// threshold differs.
	LatencyWarnChanged bool
	NewLatencyWarn     Duration
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VADChanged || d.LatencyWarnChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if vadChanged(old.VAD, new.VAD) {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	if old.Streaming.LatencyWarnThreshold != new.Streaming.LatencyWarnThreshold {
		d.LatencyWarnChanged = true
		d.NewLatencyWarn = new.Streaming.LatencyWarnThreshold
	}

	return d
}

// vadChanged compares two VAD blocks field by field, treating an absent
// enable flag or threshold block as distinct from a present one.
func vadChanged(old, new VADConfig) bool {
	if (old.Enabled == nil) != (new.Enabled == nil) {
		return true
	}
	if old.Enabled != nil && *old.Enabled != *new.Enabled {
		return true
	}
	if old.Sensitivity != new.Sensitivity {
		return true
	}
	if (old.CustomThresholds == nil) != (new.CustomThresholds == nil) {
		return true
	}
	if old.CustomThresholds != nil && *old.CustomThresholds != *new.CustomThresholds {
		return true
	}
	return false
}
