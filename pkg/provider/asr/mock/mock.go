// Package mock provides test doubles for the asr package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Message values and inspect
// which chunks were delivered.
//
// Example:
//
//	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg asr.StreamConfig
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a new default Session with a buffered channel.
	Session asr.SessionHandle

	// Sessions, if non-empty, yields one handle per StartStream call
	// before falling back to Session. Useful for scripting reconnect
	// sequences where each dial must land on a different handle.
	Sessions []asr.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamErrs, if non-empty, yields one error per StartStream call
	// before falling back to StartStreamErr. Useful for scripting "fail
	// twice, then succeed" sequences.
	StartStreamErrs []error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns the scripted session or error.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if len(p.StartStreamErrs) > 0 {
		err := p.StartStreamErrs[0]
		p.StartStreamErrs = p.StartStreamErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if len(p.Sessions) > 0 {
		sess := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return sess, nil
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{MessagesCh: make(chan asr.Message, 16)}, nil
}

// StartStreamCallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) StartStreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)

// SendChunkCall records a single invocation of Session.SendChunk.
type SendChunkCall struct {
	// Chunk is a copy of the chunk passed to SendChunk, including a deep
	// copy of its PCM payload.
	Chunk asr.Chunk
}

// Session is a mock implementation of asr.SessionHandle.
// Callers should pre-populate MessagesCh with the Message values they want
// the consumer to receive, then close it when done.
type Session struct {
	mu sync.Mutex

	// MessagesCh is the channel returned by Messages(). Callers own this
	// channel and are responsible for sending to and closing it in tests.
	MessagesCh chan asr.Message

	// SendChunkErr, if non-nil, is returned by every SendChunk call.
	SendChunkErr error

	// SessionErr is returned by Err.
	SessionErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendChunkCalls records every call to SendChunk in order.
	SendChunkCalls []SendChunkCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendChunk records the call and returns SendChunkErr.
func (s *Session) SendChunk(chunk asr.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := chunk
	cp.PCM = make([]byte, len(chunk.PCM))
	copy(cp.PCM, chunk.PCM)
	s.SendChunkCalls = append(s.SendChunkCalls, SendChunkCall{Chunk: cp})
	return s.SendChunkErr
}

// Messages returns MessagesCh. The caller must have initialised MessagesCh
// before calling this method.
func (s *Session) Messages() <-chan asr.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MessagesCh
}

// Err returns SessionErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// SendChunkCallCount returns the number of SendChunk calls. Thread-safe.
func (s *Session) SendChunkCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendChunkCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendChunkCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements asr.SessionHandle at compile time.
var _ asr.SessionHandle = (*Session)(nil)
