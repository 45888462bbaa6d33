// Package asr defines the Provider interface for remote speech analysis
// backends.
//
// An ASR provider wraps a real-time analysis service and exposes a uniform
// streaming interface. The central abstraction is [SessionHandle]: once
// opened, a session accepts sequenced PCM chunks and emits a single ordered
// stream of [Message] values — partial and final analysis results keyed by
// chunk sequence number, server status updates, and server-reported faults.
//
// Implementations must be safe for concurrent use. Chunk input and message
// output channels are goroutine-safe by construction.
package asr

import (
	"context"
	"errors"
)

// Sentinel errors returned by providers. Wrap-aware callers classify
// failures with errors.Is.
var (
	// ErrSessionClosed is returned by SendChunk after the session ended.
	ErrSessionClosed = errors.New("asr: session is closed")

	// ErrAuthentication is returned by StartStream when the service
	// rejects the supplied credentials. Callers must obtain fresh
	// credentials before retrying; the provider never retries on its own.
	ErrAuthentication = errors.New("asr: authentication rejected")
)

// StreamConfig describes the audio format announced to the service when a
// new analysis session starts.
type StreamConfig struct {
	// SessionID is the caller-generated identifier correlating this
	// session across client and server logs. Must be non-empty.
	SessionID string

	// SampleRate of the chunk payloads in Hz (e.g. 16000).
	SampleRate int

	// Channels in the chunk payloads. 1 = mono.
	Channels int

	// BitDepth of the PCM payload in bits per sample. 16 is the only
	// depth the reference service accepts.
	BitDepth int

	// ChunkSizeBytes is the expected payload size per chunk, announced
	// so the service can size its buffers.
	ChunkSizeBytes int
}

// SessionHandle represents an open analysis session. It is an interface so
// that test code can provide mock implementations without a live service
// connection.
//
// Callers must call Close when the session is no longer needed; failing to
// do so leaks goroutines and the network connection inside the provider.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendChunk queues one sequenced audio chunk for delivery. The chunk
	// must match the format agreed in StreamConfig. Calling SendChunk
	// after Close (or after the connection dropped) returns
	// [ErrSessionClosed].
	SendChunk(chunk Chunk) error

	// Messages returns the ordered stream of server messages. The
	// channel is closed when the session ends, whether by Close or by a
	// connection failure; check Err afterwards to distinguish the two.
	Messages() <-chan Message

	// Err returns the terminal session error after Messages has closed,
	// or nil if the session ended by a clean Close.
	Err() error

	// Close announces session stop to the service, flushes pending
	// chunks, and releases all resources. After Close returns, the
	// Messages channel is closed. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Provider is the abstraction over any remote speech analysis backend.
//
// Implementations must be safe for concurrent use; multiple sessions may
// be open simultaneously.
type Provider interface {
	// StartStream opens a new analysis session and announces the audio
	// format. The returned SessionHandle is ready to accept chunks
	// immediately.
	//
	// Returns an error if the session cannot be established; wraps
	// [ErrAuthentication] when the service rejected the credentials.
	// The caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
