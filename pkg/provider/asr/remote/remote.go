// Package remote implements the asr.Provider interface against the Auricle
// ingest service's streaming WebSocket endpoint.
//
// The wire protocol is a thin duplex framing: one JSON "start" control
// frame announcing the session format, binary chunk frames carrying
// sequenced PCM16 audio, a JSON "stop" control frame at shutdown, and
// inbound JSON frames for results, status updates, and faults.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/asr"
	"github.com/coder/websocket"
)

const (
	defaultEndpoint = "ws://localhost:8001/asr/stream"

	defaultSampleRate = 16000
	defaultBitDepth   = 16
)

// TokenSource supplies the opaque API credential for a new session. It is
// called once per StartStream so expired credentials can be refreshed by
// the external authentication layer.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) {
		return tok, nil
	}
}

// Option is a functional option for configuring the remote Provider.
type Option func(*Provider)

// WithEndpoint overrides the service endpoint URL (e.g. for tests or a
// non-default deployment).
func WithEndpoint(url string) Option {
	return func(p *Provider) {
		p.endpoint = url
	}
}

// Provider implements asr.Provider over the ingest WebSocket protocol.
type Provider struct {
	tokens   TokenSource
	endpoint string
}

var _ asr.Provider = (*Provider)(nil)

// New creates a remote Provider. tokens must be non-nil; every session
// start requests a fresh credential from it.
func New(tokens TokenSource, opts ...Option) (*Provider, error) {
	if tokens == nil {
		return nil, errors.New("remote: token source must not be nil")
	}
	p := &Provider{
		tokens:   tokens,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session: fetches a credential, dials the endpoint,
// and announces the audio format. A credential fetch failure or a rejected
// key wraps [asr.ErrAuthentication].
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	token, err := p.tokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch credential: %w: %w", asr.ErrAuthentication, err)
	}

	headers := http.Header{}
	headers.Set("x-api-key", token)
	headers.Set("x-session-id", cfg.SessionID)

	conn, resp, err := websocket.Dial(ctx, p.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("remote: dial: %w: service returned %d", asr.ErrAuthentication, resp.StatusCode)
		}
		return nil, fmt.Errorf("remote: dial: %w", err)
	}

	start := startMessage{
		Type:           "start",
		SessionID:      cfg.SessionID,
		Format:         "pcm16le",
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		BitDepth:       cfg.BitDepth,
		ChunkSizeBytes: cfg.ChunkSizeBytes,
	}
	if err := writeJSON(ctx, conn, start); err != nil {
		conn.Close(websocket.StatusInternalError, "start announce failed")
		return nil, fmt.Errorf("remote: announce session start: %w", err)
	}

	sess := &session{
		conn:      conn,
		sessionID: cfg.SessionID,
		messages:  make(chan asr.Message, 64),
		chunks:    make(chan asr.Chunk, 256),
		done:      make(chan struct{}),
		failed:    make(chan struct{}),
	}

	sess.readWG.Add(1)
	go sess.readLoop()
	sess.writeWG.Add(1)
	go sess.writeLoop()

	return sess, nil
}

func validateConfig(cfg *asr.StreamConfig) error {
	if cfg.SessionID == "" {
		return errors.New("session id must not be empty")
	}
	if strings.ContainsAny(cfg.SessionID, "\r\n") {
		return errors.New("session id must not contain line breaks")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.Channels < 0 {
		return fmt.Errorf("channels must be positive, got %d", cfg.Channels)
	}
	if cfg.BitDepth == 0 {
		cfg.BitDepth = defaultBitDepth
	}
	if cfg.BitDepth != defaultBitDepth {
		return fmt.Errorf("bit depth %d not supported, only 16", cfg.BitDepth)
	}
	return nil
}

// session is a live ingest streaming session. It implements
// asr.SessionHandle.
type session struct {
	conn      *websocket.Conn
	sessionID string
	messages  chan asr.Message
	chunks    chan asr.Chunk

	// done is closed by Close; failed is closed by fail when either loop
	// hits a terminal error, so senders on a dead connection unblock
	// without waiting for Close.
	done     chan struct{}
	failed   chan struct{}
	once     sync.Once
	failOnce sync.Once
	readWG   sync.WaitGroup
	writeWG  sync.WaitGroup

	mu  sync.Mutex
	err error
}

var _ asr.SessionHandle = (*session)(nil)

// SendChunk queues a chunk for delivery to the service. It fails with
// [asr.ErrSessionClosed] once the session is closed or has hit a terminal
// connection error; it never blocks on a dead session.
func (s *session) SendChunk(chunk asr.Chunk) error {
	select {
	case <-s.done:
		return s.closedErr()
	case <-s.failed:
		return s.closedErr()
	default:
	}
	select {
	case s.chunks <- chunk:
		return nil
	case <-s.done:
		return s.closedErr()
	case <-s.failed:
		return s.closedErr()
	}
}

// closedErr wraps the terminal session error, if any, in ErrSessionClosed.
func (s *session) closedErr() error {
	if err := s.Err(); err != nil {
		return fmt.Errorf("%w: %w", asr.ErrSessionClosed, err)
	}
	return asr.ErrSessionClosed
}

// Messages returns the ordered inbound message stream.
func (s *session) Messages() <-chan asr.Message { return s.messages }

// Err returns the terminal session error, nil after a clean Close.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes queued chunks, announces session stop, and tears the
// connection down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Let the write loop finish draining queued chunks so the stop
		// announce is the last frame out.
		s.writeWG.Wait()
		ctx := context.Background()
		_ = writeJSON(ctx, s.conn, stopMessage{Type: "stop", SessionID: s.sessionID})
		s.conn.Close(websocket.StatusNormalClosure, "session stopped")
		s.readWG.Wait()
	})
	return nil
}

// writeLoop reads from the chunk queue and sends binary frames.
func (s *session) writeLoop() {
	defer s.writeWG.Done()
	ctx := context.Background()
	for {
		select {
		case chunk := <-s.chunks:
			if err := s.conn.Write(ctx, websocket.MessageBinary, encodeChunkFrame(chunk)); err != nil {
				s.fail(fmt.Errorf("remote: send chunk %d: %w", chunk.Sequence, err))
				return
			}
		case <-s.failed:
			return
		case <-s.done:
			// Drain the queue before exiting.
			for {
				select {
				case chunk := <-s.chunks:
					_ = s.conn.Write(ctx, websocket.MessageBinary, encodeChunkFrame(chunk))
				default:
					return
				}
			}
		}
	}
}

// readLoop receives inbound frames and dispatches parsed messages.
func (s *session) readLoop() {
	defer s.readWG.Done()
	defer close(s.messages)

	ctx := context.Background()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Clean shutdown; the connection was closed by Close.
			default:
				s.fail(fmt.Errorf("remote: connection lost: %w", err))
			}
			return
		}

		msg, ok := parseServerMessage(data)
		if !ok {
			continue
		}
		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}

// fail records the first terminal error and marks the session failed so
// blocked senders observe the death.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.failOnce.Do(func() { close(s.failed) })
}

// writeJSON marshals v and sends it as one text frame.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
