// Package stream connects chunk production to a persistent duplex analysis
// session, with voice-activity-aware admission control.
//
// The central type is [Streamer]: it owns the session lifecycle, the
// per-chunk latency tracker and the network quality estimate. Mid-session
// transport faults are absorbed by a [SessionGuard] and repaired by a
// [Reconnector]; the stream degrades instead of dying.
package stream

import (
	"fmt"
	"sync"
	"time"
)

// ErrorKind classifies a session error.
type ErrorKind string

// The closed set of session error kinds.
const (
	ErrorConnection     ErrorKind = "connection"
	ErrorNetwork        ErrorKind = "network"
	ErrorTransport      ErrorKind = "transport"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorServer         ErrorKind = "server"
)

// maxSessionErrors bounds the per-session error list. When full, the oldest
// entry is evicted.
const maxSessionErrors = 32

// SessionError is one fault recorded against a streaming session.
type SessionError struct {
	// Kind classifies the fault.
	Kind ErrorKind

	// At is when the fault was recorded.
	At time.Time

	// Msg describes the fault.
	Msg string

	// Err is the underlying error, if any.
	Err error
}

// Error returns "kind: msg: err".
func (e SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying error.
func (e SessionError) Unwrap() error { return e.Err }

// Session is the record of one streaming session: identity, lifetime, and
// the bounded list of faults that occurred during it.
//
// All methods are safe for concurrent use.
type Session struct {
	// ID is the caller-generated session identifier, shared with the
	// remote service for log correlation.
	ID string

	// StartedAt is when the session was announced to the service.
	StartedAt time.Time

	mu         sync.Mutex
	endedAt    time.Time
	avgLatency time.Duration
	errors     []SessionError
}

// NewSession creates a session record with the given identifier.
func NewSession(id string) *Session {
	return &Session{ID: id, StartedAt: time.Now()}
}

// RecordError appends a fault to the session's error list, evicting the
// oldest entry when the list is full.
func (s *Session) RecordError(kind ErrorKind, msg string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) >= maxSessionErrors {
		s.errors = s.errors[1:]
	}
	s.errors = append(s.errors, SessionError{
		Kind: kind,
		At:   time.Now(),
		Msg:  msg,
		Err:  err,
	})
}

// Errors returns a copy of the recorded faults, oldest first.
func (s *Session) Errors() []SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Finalize stamps the session end time and the final average round-trip
// latency. Later calls are no-ops.
func (s *Session) Finalize(avgLatency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.endedAt.IsZero() {
		return
	}
	s.endedAt = time.Now()
	s.avgLatency = avgLatency
}

// EndedAt returns when the session was finalized, or the zero time while it
// is still active.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// AvgLatency returns the final average round-trip latency recorded at
// finalization.
func (s *Session) AvgLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avgLatency
}
