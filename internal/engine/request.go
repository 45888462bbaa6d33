package engine

import "time"

// Op names a control operation serviced by the engine mailbox.
type Op string

const (
	OpConfigure      Op = "configure"
	OpStart          Op = "start"
	OpStop           Op = "stop"
	OpUpdateSettings Op = "update-settings"
	OpResetBuffers   Op = "reset-buffers"
	OpMetrics        Op = "metrics"
	OpState          Op = "state"
)

// Settings is a partial configuration update applied to a running engine
// between frames. Nil fields are left unchanged. Unlike a full configure,
// applying settings never interrupts chunk accumulation.
type Settings struct {
	VADThresholds     *VADThresholdsUpdate
	VADEnabled        *bool
	MaxProcessingTime *time.Duration
	Debug             *bool
}

// VADThresholdsUpdate carries replacement detection thresholds. It mirrors
// vad.Thresholds so control-path callers can construct updates without
// importing the detector package.
type VADThresholdsUpdate struct {
	Energy                float64
	Frequency             float64
	Flatness              float64
	Pitch                 float64
	SilenceToSpeechFrames int
	SpeechToSilenceFrames int
}

// Request is one correlated control message posted to the engine mailbox.
// Exactly the fields relevant to Op are set. The Reply channel must have
// capacity 1 so the engine can respond without blocking the processing
// loop; a caller that stopped listening simply never reads the reply.
type Request struct {
	// ID correlates the request with its response in logs. The engine
	// echoes it back verbatim.
	ID string

	Op Op

	// Config accompanies OpConfigure.
	Config *Config

	// Settings accompanies OpUpdateSettings.
	Settings *Settings

	// Flush makes OpStop emit a partially filled chunk instead of
	// discarding it.
	Flush bool

	// Reply receives exactly one Response. Must be buffered.
	Reply chan<- Response
}

// Response is the engine's answer to one [Request].
type Response struct {
	// ID echoes the request's correlation ID.
	ID string

	// State is the engine state after the operation was applied.
	State State

	// Metrics is set for OpMetrics responses.
	Metrics *MetricsSnapshot

	// Err is the operation failure, nil on success.
	Err error
}
