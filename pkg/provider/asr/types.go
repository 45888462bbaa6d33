package asr

import "time"

// Chunk is one sequenced unit of audio handed to a session. The payload is
// raw little-endian PCM16; the sequence number is the correlation key the
// service echoes back in [Result] messages.
type Chunk struct {
	// Sequence is the monotonically increasing chunk number within the
	// session, starting at 0.
	Sequence uint64

	// Timestamp is the chunk's start time relative to session start.
	Timestamp time.Duration

	// SampleRate of the payload in Hz.
	SampleRate int

	// Channels in the payload.
	Channels int

	// PCM is the little-endian 16-bit payload.
	PCM []byte
}

// Message is one server-to-client message on an analysis session. The set
// of concrete types is closed: [Result], [Status], and [Fault]. Consumers
// dispatch with a type switch over exactly these three.
type Message interface {
	isMessage()
}

// Result is a partial or final analysis result for one chunk. Receiving a
// Result acknowledges the chunk with the matching sequence number.
type Result struct {
	// Sequence of the chunk this result refers to.
	Sequence uint64

	// Text is the recognised transcript so far.
	Text string

	// Final reports whether the service has committed to this result.
	// Partial results for the same sequence may be superseded.
	Final bool

	// Confidence in [0, 1] as reported by the service; 0 when the
	// service does not score results.
	Confidence float64

	// Words are the per-word tokens of a final transcript. Empty when the
	// service does not tokenize, or for partial results.
	Words []string

	// Detections are auxiliary classifier hits accompanying the result,
	// such as content moderation labels. Empty when no classifier ran.
	Detections []Detection
}

func (Result) isMessage() {}

// Detection is one auxiliary classifier hit attached to a [Result].
type Detection struct {
	// Label is the service-defined class name (e.g. "safe", "block").
	Label string

	// Score in [0, 1].
	Score float64
}

// Status is an advisory state update from the service.
type Status struct {
	// State is the service-defined state name (e.g. "ok", "draining").
	State string

	// Detail is an optional human-readable elaboration.
	Detail string
}

func (Status) isMessage() {}

// Fault is an error reported by the service inside an otherwise healthy
// session. It implements error so callers can propagate it directly.
type Fault struct {
	// Code is the machine-readable error identifier.
	Code string

	// Detail is the human-readable message.
	Detail string

	// Recoverable reports whether the session remains usable.
	Recoverable bool
}

func (Fault) isMessage() {}

// Error returns the fault formatted as "code: detail".
func (f Fault) Error() string {
	if f.Detail == "" {
		return f.Code
	}
	return f.Code + ": " + f.Detail
}
