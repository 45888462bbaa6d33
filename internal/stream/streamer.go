package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/auricle/internal/engine"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// Default streamer parameters.
const (
	defaultLatencyWarn     = 500 * time.Millisecond
	defaultQualityInterval = 5 * time.Second
	defaultChunkQueue      = 16
)

// ErrAlreadyStarted is returned by Start when a session is active.
var ErrAlreadyStarted = errors.New("stream: already started")

// ErrNotStarted is returned by Enqueue before Start succeeded.
var ErrNotStarted = errors.New("stream: not started")

// ReadyProbe reports whether a prerequisite is available. Probes run before
// any session state is created, so a failing probe never leaves a partially
// started stream behind.
type ReadyProbe func(ctx context.Context) error

// Config configures a [Streamer].
type Config struct {
	// Provider is the analysis backend sessions are opened against.
	Provider asr.Provider

	// ConnectionReady probes remote reachability before starting. May be
	// nil to skip the probe.
	ConnectionReady ReadyProbe

	// CaptureReady probes capture-device availability before starting. May
	// be nil to skip the probe.
	CaptureReady ReadyProbe

	// SampleRate and Channels describe the chunk payloads, announced to the
	// service at session start.
	SampleRate int
	Channels   int

	// ChunkSizeBytes is the expected payload size per chunk.
	ChunkSizeBytes int

	// VADFilter enables admission control: chunks whose stable decision is
	// non-speech are dropped locally instead of sent.
	VADFilter bool

	// LatencyWarn is the round-trip latency above which a non-fatal warning
	// is logged. Defaults to 500ms if zero.
	LatencyWarn time.Duration

	// QualityInterval is how often the network quality ordinal is
	// re-derived. Defaults to 5s if zero.
	QualityInterval time.Duration

	// OnQuality is called from the run goroutine whenever the quality
	// ordinal is re-derived. May be nil.
	OnQuality func(Quality)

	// OnLatency is called from the run goroutine with every measured
	// round trip. May be nil.
	OnLatency func(time.Duration)

	// OnResult is called from the run goroutine with every inbound analysis
	// result, including partials and results whose sequence is no longer
	// tracked. May be nil.
	OnResult func(asr.Result)
}

// Stats is a snapshot of streamer counters.
type Stats struct {
	// Admitted is the number of chunks sent to the service.
	Admitted uint64

	// VADDropped is the number of chunks dropped by admission control.
	VADDropped uint64

	// QueueDropped is the number of chunks dropped because the send queue
	// was full.
	QueueDropped uint64

	// SendFailures is the number of chunks lost to transport faults.
	SendFailures uint64

	// Outstanding is the number of sent chunks awaiting acknowledgement.
	Outstanding int

	// AvgLatency is the running mean round-trip latency.
	AvgLatency time.Duration

	// LossRate is the fraction of resolved chunks counted as lost.
	LossRate float64

	// Quality is the current network quality ordinal.
	Quality Quality
}

// Streamer bridges chunk production to a persistent analysis session. It is
// constructor-injected and explicitly owned: the caller creates it, starts
// it, feeds it chunks and stops it.
//
// One run goroutine owns the latency tracker and all send/receive
// bookkeeping; Enqueue only hands chunks across a channel.
type Streamer struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	starting bool
	session  *Session
	guard    *SessionGuard
	reconn   *Reconnector
	in       chan engine.Chunk
	stop     chan struct{}
	wg       sync.WaitGroup

	reconnected chan struct{}

	admitted     atomic.Uint64
	vadDropped   atomic.Uint64
	queueDropped atomic.Uint64
	sendFailures atomic.Uint64
	quality      atomic.Int64
	latencyWarn  atomic.Int64

	statsMu    sync.Mutex
	avgLatency time.Duration
	lossRate   float64
	outstand   int
}

// New creates a streamer. Start must be called before chunks are accepted.
func New(cfg Config) *Streamer {
	if cfg.LatencyWarn <= 0 {
		cfg.LatencyWarn = defaultLatencyWarn
	}
	if cfg.QualityInterval <= 0 {
		cfg.QualityInterval = defaultQualityInterval
	}
	s := &Streamer{cfg: cfg}
	s.quality.Store(int64(QualityExcellent))
	s.latencyWarn.Store(int64(cfg.LatencyWarn))
	return s
}

// SetLatencyWarn replaces the round-trip warning threshold. Safe to call
// while the streamer is running; configuration reloads use it.
func (s *Streamer) SetLatencyWarn(d time.Duration) {
	if d <= 0 {
		d = defaultLatencyWarn
	}
	s.latencyWarn.Store(int64(d))
}

// Start verifies connection and capture readiness, opens a session with a
// fresh identifier, announces it to the service, and launches the run
// goroutine. A failed probe or dial leaves the streamer fully stopped.
func (s *Streamer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	// Claim the start so a concurrent caller cannot pass the guard while
	// this one is still probing and dialing outside the lock.
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	if s.cfg.ConnectionReady != nil {
		if err := s.cfg.ConnectionReady(ctx); err != nil {
			return fmt.Errorf("stream: connection not ready: %w", err)
		}
	}
	if s.cfg.CaptureReady != nil {
		if err := s.cfg.CaptureReady(ctx); err != nil {
			return fmt.Errorf("stream: capture not ready: %w", err)
		}
	}

	session := NewSession(uuid.NewString())
	streamCfg := asr.StreamConfig{
		SessionID:      session.ID,
		SampleRate:     s.cfg.SampleRate,
		Channels:       s.cfg.Channels,
		BitDepth:       16,
		ChunkSizeBytes: s.cfg.ChunkSizeBytes,
	}

	reconnected := make(chan struct{}, 1)
	guard := NewSessionGuard(session, nil)
	reconn := NewReconnector(ReconnectorConfig{
		Provider:     s.cfg.Provider,
		StreamConfig: streamCfg,
		OnReconnect: func(h asr.SessionHandle) {
			old := guard.Swap(h)
			if old != nil {
				_ = old.Close()
			}
			select {
			case reconnected <- struct{}{}:
			default:
			}
		},
	})

	handle, err := reconn.Connect(ctx)
	if err != nil {
		return fmt.Errorf("stream: start session %s: %w", session.ID, err)
	}
	guard.Swap(handle)

	s.mu.Lock()
	s.running = true
	s.session = session
	s.guard = guard
	s.reconn = reconn
	s.reconnected = reconnected
	s.in = make(chan engine.Chunk, defaultChunkQueue)
	s.stop = make(chan struct{})
	s.mu.Unlock()

	reconn.Monitor(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	slog.Info("streaming session started",
		"session_id", session.ID,
		"sample_rate", streamCfg.SampleRate,
		"channels", streamCfg.Channels,
		"vad_filter", s.cfg.VADFilter,
	)
	return nil
}

// Enqueue hands a chunk to the run goroutine without blocking. A full queue
// drops the chunk and returns false.
func (s *Streamer) Enqueue(chunk engine.Chunk) bool {
	s.mu.Lock()
	running := s.running
	in := s.in
	s.mu.Unlock()
	if !running {
		return false
	}
	select {
	case in <- chunk:
		return true
	default:
		s.queueDropped.Add(1)
		return false
	}
}

// Stop finalizes the session, announces stop to the service, and clears the
// latency tracker and any buffered chunks. Safe to call multiple times.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop := s.stop
	reconn := s.reconn
	guard := s.guard
	session := s.session
	s.mu.Unlock()

	close(stop)
	s.wg.Wait()

	err := errors.Join(reconn.Stop(), guard.Close())

	slog.Info("streaming session stopped",
		"session_id", session.ID,
		"avg_latency", session.AvgLatency(),
		"admitted", s.admitted.Load(),
		"vad_dropped", s.vadDropped.Load(),
	)
	return err
}

// Session returns the current (or most recent) session record, or nil
// before the first Start.
func (s *Streamer) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Running reports whether a session is active.
func (s *Streamer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Degraded reports whether the most recent send failed. Always false when
// no session is active.
func (s *Streamer) Degraded() bool {
	s.mu.Lock()
	guard := s.guard
	s.mu.Unlock()
	return guard != nil && guard.Degraded()
}

// Quality returns the current network quality ordinal.
func (s *Streamer) Quality() Quality {
	return Quality(s.quality.Load())
}

// Stats returns a snapshot of the streamer counters.
func (s *Streamer) Stats() Stats {
	s.statsMu.Lock()
	avg, loss, out := s.avgLatency, s.lossRate, s.outstand
	s.statsMu.Unlock()
	return Stats{
		Admitted:     s.admitted.Load(),
		VADDropped:   s.vadDropped.Load(),
		QueueDropped: s.queueDropped.Load(),
		SendFailures: s.sendFailures.Load(),
		Outstanding:  out,
		AvgLatency:   avg,
		LossRate:     loss,
		Quality:      s.Quality(),
	}
}

// run owns the latency tracker and services chunks, server messages and the
// quality ticker until Stop. It finalizes the session on exit.
func (s *Streamer) run(ctx context.Context) {
	defer s.wg.Done()

	tracker := newLatencyTracker()
	ticker := time.NewTicker(s.cfg.QualityInterval)
	defer ticker.Stop()

	msgs := s.guard.Messages()

	defer func() {
		s.session.Finalize(tracker.Average())
		tracker.Clear()
		s.drainQueue()
	}()

	for {
		s.publishStats(tracker)
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case chunk := <-s.in:
			s.sendChunk(tracker, chunk)
		case msg, ok := <-msgs:
			if !ok {
				s.onDisconnect(tracker)
				msgs = nil
				continue
			}
			s.onMessage(tracker, msg)
		case <-s.reconnected:
			msgs = s.guard.Messages()
		case <-ticker.C:
			s.updateQuality(tracker)
		}
	}
}

// sendChunk applies admission control, serializes and sends one chunk, and
// records its send time for latency measurement.
func (s *Streamer) sendChunk(tracker *latencyTracker, chunk engine.Chunk) {
	if s.cfg.VADFilter && !chunk.VAD.Speech {
		s.vadDropped.Add(1)
		return
	}

	out := asr.Chunk{
		Sequence:   chunk.Sequence,
		Timestamp:  chunk.Start,
		SampleRate: chunk.OutputRate,
		Channels:   1,
		PCM:        audio.FloatToPCM16(chunk.Samples),
	}
	if err := s.guard.SendChunk(out); err != nil {
		s.sendFailures.Add(1)
		if errors.Is(err, asr.ErrSessionClosed) {
			s.reconn.NotifyDisconnect()
		}
		return
	}
	s.admitted.Add(1)
	tracker.Track(chunk.Sequence, time.Now())
}

// onMessage dispatches one server message.
func (s *Streamer) onMessage(tracker *latencyTracker, msg asr.Message) {
	switch m := msg.(type) {
	case asr.Result:
		if s.cfg.OnResult != nil {
			s.cfg.OnResult(m)
		}
		rtt, ok := tracker.Ack(m.Sequence, time.Now())
		if !ok {
			return
		}
		if s.cfg.OnLatency != nil {
			s.cfg.OnLatency(rtt)
		}
		if warn := time.Duration(s.latencyWarn.Load()); rtt > warn {
			slog.Warn("chunk round trip above threshold",
				"session_id", s.session.ID,
				"sequence", m.Sequence,
				"latency", rtt,
				"threshold", warn,
			)
		}
	case asr.Status:
		slog.Debug("service status",
			"session_id", s.session.ID,
			"state", m.State,
			"detail", m.Detail,
		)
	case asr.Fault:
		s.session.RecordError(ErrorServer, "service fault", m)
		if !m.Recoverable {
			slog.Error("unrecoverable service fault",
				"session_id", s.session.ID,
				"code", m.Code,
				"detail", m.Detail,
			)
			s.reconn.NotifyDisconnect()
			return
		}
		slog.Warn("service fault",
			"session_id", s.session.ID,
			"code", m.Code,
			"detail", m.Detail,
		)
	}
}

// onDisconnect handles an unexpected message-channel close: the session is
// marked faulted, unacknowledged chunks are counted as losses (they are not
// replayed), and the reconnector takes over.
func (s *Streamer) onDisconnect(tracker *latencyTracker) {
	lost := tracker.MarkOutstandingLost()
	s.session.RecordError(ErrorConnection, "connection dropped while streaming", nil)
	slog.Warn("streaming connection dropped",
		"session_id", s.session.ID,
		"unacked_chunks_lost", lost,
	)
	s.reconn.NotifyDisconnect()
	s.updateQuality(tracker)
}

// updateQuality re-derives the quality ordinal from the tracker figures.
func (s *Streamer) updateQuality(tracker *latencyTracker) {
	q := deriveQuality(tracker.LossRate(), tracker.Average())
	prev := Quality(s.quality.Swap(int64(q)))
	if q != prev {
		slog.Info("network quality changed",
			"session_id", s.session.ID,
			"from", prev.String(),
			"to", q.String(),
			"loss_rate", tracker.LossRate(),
			"avg_latency", tracker.Average(),
		)
	}
	if s.cfg.OnQuality != nil {
		s.cfg.OnQuality(q)
	}
}

// publishStats copies run-goroutine tracker figures for external readers.
func (s *Streamer) publishStats(tracker *latencyTracker) {
	s.statsMu.Lock()
	s.avgLatency = tracker.Average()
	s.lossRate = tracker.LossRate()
	s.outstand = tracker.Outstanding()
	s.statsMu.Unlock()
}

// drainQueue discards chunks buffered at stop time.
func (s *Streamer) drainQueue() {
	for {
		select {
		case <-s.in:
		default:
			return
		}
	}
}
