// Package bridge is the control-path facade over the audio engine mailbox.
//
// The engine runs as a single-goroutine actor that only communicates through
// correlated request/response messages. The bridge turns that protocol into
// ordinary blocking method calls: each call gets a uuid correlation ID and a
// buffered reply channel, and fails with [ErrTimeout] when the engine does
// not answer within the configured window. A timed-out mutation is never
// re-sent behind the caller's back; the caller decides whether to retry.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/auricle/internal/engine"
)

// Default control-path parameters.
const (
	defaultTimeout     = 5 * time.Second
	defaultInitBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
	defaultInitRetries = 3
)

// ErrTimeout is returned when the engine does not reply within the
// per-request timeout. The request may still complete inside the engine;
// only the reply is abandoned.
var ErrTimeout = errors.New("bridge: request timed out")

// ErrNotInitialized is returned by operations that require a prior
// successful Configure or Start.
var ErrNotInitialized = errors.New("bridge: engine not initialized")

// Bridge mediates between the control path and the engine actor. It mirrors
// the engine state so callers can inspect it without a round trip, and owns
// the initialize-with-backoff policy used by [Bridge.Start].
//
// All methods are safe for concurrent use.
type Bridge struct {
	eng     *engine.Engine
	timeout time.Duration
	backoff time.Duration
	maxWait time.Duration
	retries int

	mu          sync.Mutex
	cfg         engine.Config
	haveCfg     bool
	initialized bool
	state       engine.State
	terminalErr error
	pending     map[string]chan engine.Response
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithTimeout overrides the default 5s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInitBackoff overrides the initialization retry schedule: initial
// backoff, backoff cap and maximum retry count.
func WithInitBackoff(initial, max time.Duration, retries int) Option {
	return func(b *Bridge) {
		if initial > 0 {
			b.backoff = initial
		}
		if max > 0 {
			b.maxWait = max
		}
		if retries > 0 {
			b.retries = retries
		}
	}
}

// New creates a bridge around the given engine.
func New(eng *engine.Engine, opts ...Option) *Bridge {
	b := &Bridge{
		eng:     eng,
		timeout: defaultTimeout,
		backoff: defaultInitBackoff,
		maxWait: defaultMaxBackoff,
		retries: defaultInitRetries,
		state:   engine.StateIdle,
		pending: make(map[string]chan engine.Response),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// send posts one correlated request and waits for its reply. The pending
// entry is always removed before returning, so an abandoned reply never
// leaks.
func (b *Bridge) send(ctx context.Context, req engine.Request) (engine.Response, error) {
	id := uuid.NewString()
	reply := make(chan engine.Response, 1)
	req.ID = id
	req.Reply = reply

	b.mu.Lock()
	b.pending[id] = reply
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.eng.Requests() <- req:
	case <-timer.C:
		return engine.Response{}, fmt.Errorf("%w (op %s, id %s)", ErrTimeout, req.Op, id)
	case <-ctx.Done():
		return engine.Response{}, ctx.Err()
	}

	select {
	case resp := <-reply:
		b.mu.Lock()
		b.state = resp.State
		b.mu.Unlock()
		return resp, nil
	case <-timer.C:
		return engine.Response{}, fmt.Errorf("%w (op %s, id %s)", ErrTimeout, req.Op, id)
	case <-ctx.Done():
		return engine.Response{}, ctx.Err()
	}
}

// Configure installs a full engine configuration. On success the bridge is
// marked initialized and any terminal initialization error is cleared.
func (b *Bridge) Configure(ctx context.Context, cfg engine.Config) error {
	resp, err := b.send(ctx, engine.Request{Op: engine.OpConfigure, Config: &cfg})
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}

	b.mu.Lock()
	b.cfg = cfg
	b.haveCfg = true
	b.initialized = true
	b.terminalErr = nil
	b.mu.Unlock()
	return nil
}

// Start begins processing. When the bridge has never been configured it
// first initializes the engine with the default configuration, retrying
// timeouts with bounded exponential backoff. After the retry budget is
// exhausted the bridge enters a terminal error state and Start fails fast
// until a later Configure succeeds.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.terminalErr != nil {
		err := b.terminalErr
		b.mu.Unlock()
		return err
	}
	initialized := b.initialized
	b.mu.Unlock()

	if !initialized {
		if err := b.initialize(ctx); err != nil {
			return err
		}
	}

	resp, err := b.send(ctx, engine.Request{Op: engine.OpStart})
	if err != nil {
		return err
	}
	return resp.Err
}

// initialize configures the engine with defaults, retrying timed-out
// attempts. Rejections are returned immediately: an invalid configuration
// does not become valid by waiting.
func (b *Bridge) initialize(ctx context.Context) error {
	b.mu.Lock()
	b.state = engine.StateInitializing
	cfg := b.cfg
	if !b.haveCfg {
		cfg = engine.DefaultConfig()
	}
	b.mu.Unlock()

	wait := b.backoff
	var lastErr error
	for attempt := 1; attempt <= b.retries; attempt++ {
		err := b.Configure(ctx, cfg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTimeout) {
			return err
		}
		lastErr = err

		slog.Warn("engine initialization attempt timed out",
			"attempt", attempt,
			"max_retries", b.retries,
			"backoff", wait,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > b.maxWait {
			wait = b.maxWait
		}
	}

	err := fmt.Errorf("bridge: initialization failed after %d attempts: %w", b.retries, lastErr)
	b.mu.Lock()
	b.terminalErr = err
	b.state = engine.StateError
	b.mu.Unlock()
	slog.Error("engine initialization abandoned", "error", err)
	return err
}

// Stop halts processing. With flush set, a partial chunk accumulated at the
// moment of stopping is emitted instead of discarded.
func (b *Bridge) Stop(ctx context.Context, flush bool) error {
	resp, err := b.send(ctx, engine.Request{Op: engine.OpStop, Flush: flush})
	if err != nil {
		return err
	}
	return resp.Err
}

// UpdateSettings applies a partial settings change between processing
// cycles. Nil fields are left untouched.
func (b *Bridge) UpdateSettings(ctx context.Context, s engine.Settings) error {
	b.mu.Lock()
	initialized := b.initialized
	b.mu.Unlock()
	if !initialized {
		return ErrNotInitialized
	}
	resp, err := b.send(ctx, engine.Request{Op: engine.OpUpdateSettings, Settings: &s})
	if err != nil {
		return err
	}
	return resp.Err
}

// ResetBuffers clears accumulated audio state without changing the
// configuration or the chunk sequence counter.
func (b *Bridge) ResetBuffers(ctx context.Context) error {
	resp, err := b.send(ctx, engine.Request{Op: engine.OpResetBuffers})
	if err != nil {
		return err
	}
	return resp.Err
}

// Metrics fetches a point-in-time engine metrics snapshot.
func (b *Bridge) Metrics(ctx context.Context) (*engine.MetricsSnapshot, error) {
	resp, err := b.send(ctx, engine.Request{Op: engine.OpMetrics})
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.Metrics, nil
}

// State returns the mirrored engine state without a mailbox round trip.
func (b *Bridge) State() engine.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Initialized reports whether a Configure has ever succeeded.
func (b *Bridge) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// PendingRequests reports the number of in-flight mailbox requests.
func (b *Bridge) PendingRequests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
