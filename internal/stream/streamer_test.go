package stream_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/auricle/internal/engine"
	"github.com/MrWong99/auricle/internal/stream"
	"github.com/MrWong99/auricle/pkg/provider/asr"
	"github.com/MrWong99/auricle/pkg/provider/asr/mock"
	"github.com/MrWong99/auricle/pkg/vad"
)

func speechChunk(seq uint64) engine.Chunk {
	samples := make([]float32, 6400)
	for i := range samples {
		samples[i] = 0.3
	}
	return engine.Chunk{
		Samples:    samples,
		InputRate:  48000,
		OutputRate: 16000,
		Sequence:   seq,
		Duration:   400 * time.Millisecond,
		VAD:        vad.Result{Speech: true, Confidence: 0.9},
	}
}

func silenceChunk(seq uint64) engine.Chunk {
	c := speechChunk(seq)
	c.VAD = vad.Result{Speech: false, Confidence: 0.1}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamer_ProbeFailureMeansNoPartialStart(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{}
	s := stream.New(stream.Config{
		Provider:   provider,
		SampleRate: 16000,
		Channels:   1,
		ConnectionReady: func(context.Context) error {
			return errors.New("endpoint unreachable")
		},
	})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("start succeeded with a failing readiness probe")
	}
	if s.Running() {
		t.Error("streamer running after failed start")
	}
	if n := provider.StartStreamCallCount(); n != 0 {
		t.Errorf("provider dialed %d times despite failed probe, want 0", n)
	}
	if s.Session() != nil {
		t.Error("session created despite failed probe")
	}
}

func TestStreamer_StartAnnouncesFormat(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Session: sess}
	s := stream.New(stream.Config{
		Provider:       provider,
		SampleRate:     16000,
		Channels:       1,
		ChunkSizeBytes: 12800,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if len(provider.StartStreamCalls) != 1 {
		t.Fatalf("%d StartStream calls, want 1", len(provider.StartStreamCalls))
	}
	cfg := provider.StartStreamCalls[0].Cfg
	if cfg.SessionID == "" {
		t.Error("empty session ID announced")
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.BitDepth != 16 {
		t.Errorf("announced format %d/%d/%d, want 16000/1/16", cfg.SampleRate, cfg.Channels, cfg.BitDepth)
	}
	if cfg.ChunkSizeBytes != 12800 {
		t.Errorf("announced chunk size %d, want 12800", cfg.ChunkSizeBytes)
	}
	if s.Session().ID != cfg.SessionID {
		t.Error("session record and announced session ID differ")
	}
}

func TestStreamer_ConcurrentStartHasOneWinner(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Session: sess}
	entered := make(chan struct{})
	release := make(chan struct{})
	s := stream.New(stream.Config{
		Provider:   provider,
		SampleRate: 16000,
		Channels:   1,
		ConnectionReady: func(context.Context) error {
			close(entered)
			<-release
			return nil
		},
	})

	first := make(chan error, 1)
	go func() { first <- s.Start(context.Background()) }()
	<-entered

	// The first Start is still inside its readiness check; a second one
	// must fail fast instead of slipping past the running guard.
	if err := s.Start(context.Background()); !errors.Is(err, stream.ErrAlreadyStarted) {
		t.Fatalf("second start returned %v, want ErrAlreadyStarted", err)
	}

	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer s.Stop()

	if n := provider.StartStreamCallCount(); n != 1 {
		t.Errorf("provider dialed %d times, want 1", n)
	}
}

func TestStreamer_VADGateDropsNonSpeech(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Session: sess}
	s := stream.New(stream.Config{
		Provider:   provider,
		SampleRate: 16000,
		Channels:   1,
		VADFilter:  true,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if !s.Enqueue(silenceChunk(1)) {
		t.Fatal("enqueue rejected")
	}
	if !s.Enqueue(speechChunk(2)) {
		t.Fatal("enqueue rejected")
	}

	waitFor(t, "speech chunk delivery", func() bool {
		return sess.SendChunkCallCount() == 1
	})
	if got := s.Stats().VADDropped; got != 1 {
		t.Errorf("VAD-dropped = %d, want 1", got)
	}
	if got := sess.SendChunkCalls[0].Chunk.Sequence; got != 2 {
		t.Errorf("delivered sequence = %d, want 2 (silence filtered)", got)
	}
}

func TestStreamer_ResultResolvesLatency(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Session: sess}
	latencies := make(chan time.Duration, 1)
	s := stream.New(stream.Config{
		Provider:   provider,
		SampleRate: 16000,
		Channels:   1,
		OnLatency:  func(d time.Duration) { latencies <- d },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	s.Enqueue(speechChunk(7))
	waitFor(t, "chunk delivery", func() bool {
		return sess.SendChunkCallCount() == 1
	})

	sess.MessagesCh <- asr.Result{Sequence: 7, Text: "ok", Final: true, Confidence: 0.95}

	select {
	case <-latencies:
	case <-time.After(2 * time.Second):
		t.Fatal("result did not resolve a latency sample")
	}
	waitFor(t, "outstanding to drain", func() bool {
		return s.Stats().Outstanding == 0
	})
	if lr := s.Stats().LossRate; lr != 0 {
		t.Errorf("loss rate = %f with every chunk acked, want 0", lr)
	}
}

func TestStreamer_ResultDeliveredToCallback(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Session: sess}
	results := make(chan asr.Result, 1)
	s := stream.New(stream.Config{
		Provider:   provider,
		SampleRate: 16000,
		Channels:   1,
		OnResult:   func(r asr.Result) { results <- r },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	sent := asr.Result{
		Sequence:   3,
		Text:       "hello there",
		Final:      true,
		Confidence: 0.92,
		Words:      []string{"hello", "there"},
		Detections: []asr.Detection{{Label: "safe", Score: 0.98}},
	}
	sess.MessagesCh <- sent

	select {
	case got := <-results:
		if !reflect.DeepEqual(got, sent) {
			t.Errorf("callback result = %+v, want %+v", got, sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("result never reached the callback")
	}
}

func TestStreamer_DisconnectCountsOutstandingAsLost(t *testing.T) {
	t.Parallel()
	// Two scripted handles: the redial after the drop lands on a healthy
	// second connection.
	sess1 := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	sess2 := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Sessions: []asr.SessionHandle{sess1, sess2}}
	s := stream.New(stream.Config{
		Provider:   provider,
		SampleRate: 16000,
		Channels:   1,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	s.Enqueue(speechChunk(1))
	waitFor(t, "chunk to be tracked", func() bool {
		return s.Stats().Outstanding == 1
	})

	// Drop the connection by closing the live session's message channel.
	close(sess1.MessagesCh)

	waitFor(t, "redial", func() bool {
		return provider.StartStreamCallCount() >= 2
	})
	waitFor(t, "loss accounting", func() bool {
		return s.Stats().LossRate > 0
	})

	errs := s.Session().Errors()
	found := false
	for _, e := range errs {
		if e.Kind == stream.ErrorConnection {
			found = true
		}
	}
	if !found {
		t.Error("no connection error recorded on the session")
	}
}

func TestStreamer_StopFinalizesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	sess := &mock.Session{MessagesCh: make(chan asr.Message, 16)}
	provider := &mock.Provider{Session: sess}
	s := stream.New(stream.Config{Provider: provider, SampleRate: 16000, Channels: 1})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := s.Session()

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if session.EndedAt().IsZero() {
		t.Error("session not finalized on stop")
	}
	if s.Running() {
		t.Error("still running after stop")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}
	if sess.CloseCallCount == 0 {
		t.Error("session handle never closed")
	}
}

func TestStreamer_EnqueueBeforeStart(t *testing.T) {
	t.Parallel()
	s := stream.New(stream.Config{Provider: &mock.Provider{}, SampleRate: 16000, Channels: 1})
	if s.Enqueue(speechChunk(1)) {
		t.Error("enqueue accepted before start")
	}
}
