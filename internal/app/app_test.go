package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/audio/capture"
	"github.com/MrWong99/auricle/pkg/provider/asr"
	asrmock "github.com/MrWong99/auricle/pkg/provider/asr/mock"
)

// testConfig returns a minimal valid config with the ops listener disabled
// so tests never bind a port.
func testConfig() *config.Config {
	return &config.Config{
		Capture: config.CaptureConfig{Source: "tone"},
		Streaming: config.StreamingConfig{
			Endpoint: "wss://analysis.test/v1/stream",
			APIKey:   "test-key",
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, *asrmock.Session) {
	t.Helper()

	sess := &asrmock.Session{MessagesCh: make(chan asr.Message, 64)}
	provider := &asrmock.Provider{Session: sess}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	opts = append([]Option{WithProvider(provider), WithMetrics(metrics)}, opts...)
	a, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, sess
}

func TestNew_UnknownSourceFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Capture.Source = "pulseaudio"

	sess := &asrmock.Session{MessagesCh: make(chan asr.Message, 1)}
	_, err := New(context.Background(), cfg, WithProvider(&asrmock.Provider{Session: sess}))
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Fatalf("New error = %v, want ErrNotRegistered", err)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	// Two seconds of bounded, unpaced tone: the pipeline runs to completion
	// without wall-clock pacing.
	src := capture.NewTone(capture.ToneConfig{
		Frequency: 200,
		Amplitude: 0.4,
		Format:    audio.Format{SampleRate: 48000, Channels: 1},
		FrameSize: 960,
		MaxFrames: 100,
	})

	a, sess := newTestApp(t, testConfig(), WithSource(src))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The streamer drains its queue asynchronously; give it a moment before
	// tearing down.
	deadline := time.Now().Add(2 * time.Second)
	for sess.SendChunkCallCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := a.Shutdown(shutCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	calls := sess.SendChunkCalls
	if len(calls) == 0 {
		t.Fatal("no chunks reached the analysis session")
	}
	// Full chunks carry 400ms of 16kHz mono PCM16.
	if got := len(calls[0].Chunk.PCM); got != 12800 {
		t.Errorf("first chunk payload = %d bytes, want 12800", got)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].Chunk.Sequence != calls[i-1].Chunk.Sequence+1 {
			t.Fatalf("sequence gap: %d then %d", calls[i-1].Chunk.Sequence, calls[i].Chunk.Sequence)
		}
	}
}

func TestRun_CaptureFaultPropagates(t *testing.T) {
	t.Parallel()

	src := &faultySource{err: errors.New("device unplugged")}
	a, _ := newTestApp(t, testConfig(), WithSource(src))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.Run(ctx)
	if err == nil || !errors.Is(err, src.err) {
		t.Fatalf("Run error = %v, want wrapped %v", err, src.err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = a.Shutdown(shutCtx)
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	src := capture.NewTone(capture.ToneConfig{
		Format:    audio.Format{SampleRate: 48000, Channels: 1},
		FrameSize: 960,
		MaxFrames: 1,
	})
	a, _ := newTestApp(t, testConfig(), WithSource(src))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestApplyReload_LiveChanges(t *testing.T) {
	t.Parallel()

	src := capture.NewTone(capture.ToneConfig{
		Format:    audio.Format{SampleRate: 48000, Channels: 1},
		FrameSize: 960,
		MaxFrames: 1,
	})

	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)

	cfg := testConfig()
	a, _ := newTestApp(t, cfg, WithSource(src), WithLogLevelVar(lvl))

	cur := *cfg
	cur.Server.LogLevel = config.LogDebug
	cur.Streaming.LatencyWarnThreshold = config.Duration(250 * time.Millisecond)

	a.applyReload(cfg, &cur)

	if lvl.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lvl.Level())
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Shutdown(shutCtx)
}

func TestVADSettings_FromSensitivityPreset(t *testing.T) {
	t.Parallel()

	enabled := true
	s := vadSettings(config.VADConfig{Enabled: &enabled, Sensitivity: "high"})
	if s.VADEnabled == nil || !*s.VADEnabled {
		t.Fatal("settings should enable VAD")
	}
	if s.VADThresholds == nil {
		t.Fatal("settings missing thresholds")
	}
	if s.VADThresholds.SilenceToSpeechFrames != 2 {
		t.Errorf("activation frames = %d, want 2 for high sensitivity", s.VADThresholds.SilenceToSpeechFrames)
	}
}

func TestVADSettings_CustomThresholds(t *testing.T) {
	t.Parallel()

	s := vadSettings(config.VADConfig{
		Sensitivity: "custom",
		CustomThresholds: &config.ThresholdsConfig{
			Energy:                0.02,
			Frequency:             100,
			Flatness:              0.5,
			Pitch:                 80,
			SilenceToSpeechFrames: 3,
			SpeechToSilenceFrames: 9,
		},
	})
	if s.VADThresholds == nil || s.VADThresholds.Energy != 0.02 {
		t.Fatalf("thresholds = %+v, want custom energy 0.02", s.VADThresholds)
	}
	if s.VADEnabled == nil || !*s.VADEnabled {
		t.Error("nil Enabled should default to on")
	}
}

// faultySource closes its frame channel immediately and reports a terminal
// error.
type faultySource struct {
	err    error
	frames chan audio.Frame
}

func (s *faultySource) Start(context.Context) error {
	s.frames = make(chan audio.Frame)
	close(s.frames)
	return nil
}

func (s *faultySource) Frames() <-chan audio.Frame { return s.frames }
func (s *faultySource) Format() audio.Format {
	return audio.Format{SampleRate: 48000, Channels: 1}
}
func (s *faultySource) Err() error   { return s.err }
func (s *faultySource) Close() error { return nil }
