package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Reconnector monitors an analysis session and automatically redials on
// disconnection, preserving the session identity.
//
// Callers obtain the initial handle via [Reconnector.Connect], then call
// [Reconnector.Monitor] to start a background goroutine that watches for
// disconnections. When a drop is detected (via
// [Reconnector.NotifyDisconnect]), the monitor redials with exponential
// backoff and invokes the configured OnReconnect callback on success.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	provider    asr.Provider
	streamCfg   asr.StreamConfig
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(asr.SessionHandle)

	mu           sync.Mutex
	handle       asr.SessionHandle
	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{} // signalled when a disconnect is detected
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Provider is the analysis backend used to establish sessions.
	Provider asr.Provider

	// StreamConfig is the format announcement reused on every redial. Its
	// SessionID keeps the session identity stable across reconnects.
	StreamConfig asr.StreamConfig

	// MaxRetries is the maximum number of redial attempts before giving up.
	// Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial backoff duration between retries. Doubles each
	// attempt up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on backoff duration. Defaults to 30s if
	// zero.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful redial with the new handle.
	// May be nil.
	OnReconnect func(asr.SessionHandle)
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		provider:     cfg.Provider,
		streamCfg:    cfg.StreamConfig,
		maxRetries:   maxRetries,
		backoff:      backoff,
		maxBackoff:   maxBackoff,
		onReconnect:  cfg.OnReconnect,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
}

// Connect performs the initial dial.
func (r *Reconnector) Connect(ctx context.Context) (asr.SessionHandle, error) {
	handle, err := r.provider.StartStream(ctx, r.streamCfg)
	if err != nil {
		return nil, fmt.Errorf("reconnector initial connect: %w", err)
	}

	r.mu.Lock()
	r.handle = handle
	r.mu.Unlock()

	return handle, nil
}

// Monitor starts monitoring the session in a background goroutine. If a
// disconnection is signalled via [Reconnector.NotifyDisconnect], it redials
// with exponential backoff.
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.monitorLoop(ctx)
}

// NotifyDisconnect signals the monitor that the session has been lost and a
// redial should be attempted. Safe to call multiple times; only the first
// call per reconnection cycle has effect.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
		// Already signalled; avoid blocking.
	}
}

// Stop halts monitoring and closes the current handle.
// Safe to call multiple times.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	handle := r.handle
	r.handle = nil
	r.mu.Unlock()

	if handle != nil {
		return handle.Close()
	}
	return nil
}

// Handle returns the current session handle. May return nil during
// reconnection.
func (r *Reconnector) Handle() asr.SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// monitorLoop waits for disconnect notifications and attempts redials.
func (r *Reconnector) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.disconnected:
			r.attemptReconnect(ctx)
		}
	}
}

// attemptReconnect redials with exponential backoff.
func (r *Reconnector) attemptReconnect(ctx context.Context) {
	currentBackoff := r.backoff

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		slog.Info("attempting session redial",
			"session_id", r.streamCfg.SessionID,
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
		)

		handle, err := r.provider.StartStream(ctx, r.streamCfg)
		if err == nil {
			r.mu.Lock()
			oldHandle := r.handle
			r.handle = handle
			r.mu.Unlock()

			// Close the old (failed) handle and drain any messages still
			// queued on it so its receive goroutine can exit.
			if oldHandle != nil {
				_ = oldHandle.Close()
				go audio.Drain(oldHandle.Messages())
			}

			slog.Info("session redial successful",
				"session_id", r.streamCfg.SessionID,
				"attempt", attempt,
			)

			if r.onReconnect != nil {
				r.onReconnect(handle)
			}
			return
		}

		slog.Warn("session redial attempt failed",
			"session_id", r.streamCfg.SessionID,
			"attempt", attempt,
			"error", err,
		)

		// Wait before retrying.
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(currentBackoff):
		}

		// Exponential backoff.
		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("session redial failed after max retries",
		"session_id", r.streamCfg.SessionID,
		"max_retries", r.maxRetries,
	)
}
