package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// SessionGuard wraps the live session handle so that mid-session send
// faults degrade the stream instead of ending it. A failed send is logged,
// recorded on the session, and flips the degraded flag; readiness and
// health checks read that flag. A successful send after a reconnect clears
// it.
//
// The underlying handle can be swapped while sends are in flight, which is
// how the reconnector installs a fresh connection.
type SessionGuard struct {
	session *Session

	mu       sync.Mutex
	handle   asr.SessionHandle
	degraded atomic.Bool
}

// NewSessionGuard wraps handle, recording faults against session.
func NewSessionGuard(session *Session, handle asr.SessionHandle) *SessionGuard {
	return &SessionGuard{session: session, handle: handle}
}

// SendChunk forwards the chunk to the current handle. Failures are absorbed:
// recorded on the session, logged, and reflected in Degraded. The error is
// still returned so the caller can count the loss.
func (g *SessionGuard) SendChunk(chunk asr.Chunk) error {
	g.mu.Lock()
	handle := g.handle
	g.mu.Unlock()

	if handle == nil {
		g.degraded.Store(true)
		return asr.ErrSessionClosed
	}
	if err := handle.SendChunk(chunk); err != nil {
		g.degraded.Store(true)
		g.session.RecordError(ErrorTransport, "chunk send failed", err)
		slog.Warn("chunk send failed, stream degraded",
			"session_id", g.session.ID,
			"sequence", chunk.Sequence,
			"error", err,
		)
		return err
	}
	g.degraded.Store(false)
	return nil
}

// Messages returns the current handle's message stream, or nil when no
// handle is installed.
func (g *SessionGuard) Messages() <-chan asr.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handle == nil {
		return nil
	}
	return g.handle.Messages()
}

// Swap installs a fresh handle and returns the previous one, which the
// caller should close. Swapping clears the degraded flag.
func (g *SessionGuard) Swap(handle asr.SessionHandle) asr.SessionHandle {
	g.mu.Lock()
	old := g.handle
	g.handle = handle
	g.mu.Unlock()
	g.degraded.Store(false)
	return old
}

// Close closes the current handle, leaving the guard empty.
func (g *SessionGuard) Close() error {
	g.mu.Lock()
	handle := g.handle
	g.handle = nil
	g.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Close()
}

// Degraded reports whether the most recent send failed.
func (g *SessionGuard) Degraded() bool {
	return g.degraded.Load()
}
