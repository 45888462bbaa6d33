// Package app wires all Auricle subsystems into a running capture agent.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture pipeline until the context is
// cancelled or the input ends, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithProvider, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/auricle/internal/bridge"
	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/engine"
	"github.com/MrWong99/auricle/internal/health"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/resilience"
	"github.com/MrWong99/auricle/internal/stream"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/audio/capture"
	"github.com/MrWong99/auricle/pkg/provider/asr"
	"github.com/MrWong99/auricle/pkg/provider/asr/remote"
)

// errCaptureDone signals a clean end of the capture input through the run
// group: the agent flushed its last chunk and has nothing left to do.
var errCaptureDone = errors.New("app: capture input ended")

// captureStaleAfter is the frame age beyond which the capture readiness
// check reports failure.
const captureStaleAfter = 2 * time.Second

// App owns all subsystem lifetimes and orchestrates the capture pipeline:
// source frames feed the engine, engine chunks feed the streamer, and the
// ops listener exposes health and metrics.
type App struct {
	cfg *config.Config

	configPath string
	levelVar   *slog.LevelVar

	metrics  *observe.Metrics
	registry *config.Registry

	source   capture.Source
	provider asr.Provider
	eng      *engine.Engine
	bridge   *bridge.Bridge
	streamer *stream.Streamer
	ctrl     *controller

	httpSrv *http.Server
	watcher *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a capture source instead of creating one from config.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithProvider injects an analysis provider instead of dialing the
// configured endpoint.
func WithProvider(p asr.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithRegistry injects a component registry instead of the built-in one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigPath enables hot reload: Run watches the file and applies
// config changes that do not require a restart.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevelVar injects the level var backing the process logger so that
// config reloads can change verbosity at runtime.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: source and provider
// construction, engine configuration through the bridge, streamer setup,
// and the ops listener. Nothing processes audio until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		registerBuiltins(a.registry)
	}

	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init source: %w", err)
	}
	if err := a.initProvider(); err != nil {
		return nil, fmt.Errorf("app: init provider: %w", err)
	}

	engCfg := cfg.EngineConfigFor()
	if err := a.initEngine(ctx, engCfg); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	a.initStreamer(engCfg)
	a.ctrl = newController(a.eng, a.bridge, a.streamer, a.metrics, cfg.Streaming.VADFilter)

	if cfg.Server.ListenAddr != "" {
		a.initOpsServer()
	}

	return a, nil
}

// registerBuiltins wires the capture source and provider factories that
// ship with Auricle into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterSource("stdin", func(cc config.CaptureConfig) (capture.Source, error) {
		return capture.NewReader(os.Stdin, readerConfig(cc)), nil
	})

	reg.RegisterSource("file", func(cc config.CaptureConfig) (capture.Source, error) {
		f, err := os.Open(cc.DevicePath)
		if err != nil {
			return nil, fmt.Errorf("open capture file: %w", err)
		}
		return &fileSource{Reader: capture.NewReader(f, readerConfig(cc)), f: f}, nil
	})

	reg.RegisterSource("tone", func(cc config.CaptureConfig) (capture.Source, error) {
		return capture.NewTone(capture.ToneConfig{
			Frequency: cc.Tone.Frequency,
			Amplitude: cc.Tone.Amplitude,
			Format:    captureFormat(cc),
			FrameSize: cc.FrameSize,
			Paced:     true,
		}), nil
	})

	reg.RegisterProvider("remote", func(sc config.StreamingConfig) (asr.Provider, error) {
		return remote.New(remote.StaticToken(sc.APIKey), remote.WithEndpoint(sc.Endpoint))
	})
}

// fileSource pairs a PCM reader with the file backing it so Close releases
// the descriptor.
type fileSource struct {
	*capture.Reader
	f *os.File
}

func (s *fileSource) Close() error {
	return errors.Join(s.Reader.Close(), s.f.Close())
}

func readerConfig(cc config.CaptureConfig) capture.ReaderConfig {
	return capture.ReaderConfig{Format: captureFormat(cc), FrameSize: cc.FrameSize}
}

func captureFormat(cc config.CaptureConfig) audio.Format {
	return audio.Format{SampleRate: cc.SampleRate, Channels: cc.Channels}
}

// initSource creates the capture source from config unless one was injected.
func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	src, err := a.registry.CreateSource(a.cfg.Capture)
	if err != nil {
		return err
	}
	a.source = src
	a.closers = append(a.closers, src.Close)
	return nil
}

// initProvider creates the analysis provider from config unless one was
// injected. When a backup endpoint is configured the primary is wrapped in
// a circuit-breaking fallback chain.
func (a *App) initProvider() error {
	if a.provider != nil {
		return nil
	}

	primary, err := a.registry.CreateProvider("remote", a.cfg.Streaming)
	if err != nil {
		return err
	}

	if a.cfg.Streaming.BackupEndpoint == "" {
		a.provider = primary
		return nil
	}

	backupCfg := a.cfg.Streaming
	backupCfg.Endpoint = backupCfg.BackupEndpoint
	backup, err := a.registry.CreateProvider("remote", backupCfg)
	if err != nil {
		return fmt.Errorf("backup endpoint: %w", err)
	}

	fb := resilience.NewASRFallback(primary, "primary", resilience.FallbackConfig{})
	fb.AddFallback("backup", backup)
	a.provider = fb
	slog.Info("analysis fallback configured",
		"primary", a.cfg.Streaming.Endpoint,
		"backup", a.cfg.Streaming.BackupEndpoint,
	)
	return nil
}

// initEngine creates the engine and applies the initial configuration
// through the bridge.
func (a *App) initEngine(ctx context.Context, engCfg engine.Config) error {
	a.eng = engine.New()
	a.closers = append(a.closers, a.eng.Close)
	a.bridge = bridge.New(a.eng)

	if err := a.bridge.Configure(ctx, engCfg); err != nil {
		return err
	}
	return nil
}

// initStreamer builds the chunk streamer sized to the engine output format.
func (a *App) initStreamer(engCfg engine.Config) {
	chunkSamples := int(int64(engCfg.OutputSampleRate) * int64(engCfg.ChunkDuration) / int64(time.Second))

	a.streamer = stream.New(stream.Config{
		Provider:        a.provider,
		SampleRate:      engCfg.OutputSampleRate,
		Channels:        1,
		ChunkSizeBytes:  chunkSamples * 2,
		VADFilter:       a.cfg.Streaming.VADFilter,
		LatencyWarn:     a.cfg.Streaming.LatencyWarnThreshold.Std(),
		QualityInterval: a.cfg.Streaming.QualityInterval.Std(),
		OnQuality: func(q stream.Quality) {
			a.metrics.NetworkQuality.Record(context.Background(), int64(q))
		},
		OnLatency: func(d time.Duration) {
			a.metrics.RecordRoundTrip(context.Background(), d.Seconds())
		},
		OnResult: logResult,
	})
	a.closers = append(a.closers, a.streamer.Stop)
}

// logResult reports inbound analysis results. Detections are classifier
// hits the operator likely wants to see; transcripts stay at debug.
func logResult(r asr.Result) {
	for _, d := range r.Detections {
		slog.Info("analysis detection",
			"sequence", r.Sequence,
			"label", d.Label,
			"score", d.Score,
		)
	}
	if r.Final {
		slog.Debug("final analysis result",
			"sequence", r.Sequence,
			"text_len", len(r.Text),
			"words", len(r.Words),
			"confidence", r.Confidence,
		)
	}
}

// initOpsServer builds the HTTP listener serving health probes and the
// Prometheus scrape endpoint.
func (a *App) initOpsServer() {
	mux := http.NewServeMux()

	h := health.New(
		health.Checker{Name: "engine", Check: func(context.Context) error {
			if s := a.bridge.State(); s == engine.StateError {
				return fmt.Errorf("engine in state %s", s)
			}
			return nil
		}},
		health.Checker{Name: "transport", Check: func(context.Context) error {
			if !a.streamer.Running() {
				return errors.New("stream session not established")
			}
			if a.streamer.Degraded() {
				return fmt.Errorf("%w: reconnecting after session loss", health.ErrDegraded)
			}
			if q := a.streamer.Quality(); q == stream.QualityPoor {
				return fmt.Errorf("%w: network quality %s", health.ErrDegraded, q)
			}
			return nil
		}},
		health.Checker{Name: "capture", Check: func(context.Context) error {
			age, ok := a.ctrl.lastFrameAge()
			if !ok {
				return nil // no frame yet; still warming up
			}
			if age > captureStaleAfter {
				return fmt.Errorf("no frames for %s", age.Round(time.Millisecond))
			}
			return nil
		}},
	)
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the pipeline and blocks until ctx is cancelled, the capture
// input ends, or a subsystem fails. A clean end of input returns nil.
func (a *App) Run(ctx context.Context) error {
	if err := a.bridge.Start(ctx); err != nil {
		return fmt.Errorf("app: start engine: %w", err)
	}
	if err := a.streamer.Start(ctx); err != nil {
		return fmt.Errorf("app: start streamer: %w", err)
	}
	if err := a.source.Start(ctx); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyReload)
		if err != nil {
			slog.Warn("config watcher unavailable", "path", a.configPath, "err", err)
		} else {
			a.watcher = w
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ctrl.feedLoop(gctx, a.source) })
	g.Go(func() error { return a.ctrl.eventLoop(gctx) })
	g.Go(func() error { return a.ctrl.chunkLoop(gctx) })

	if a.httpSrv != nil {
		g.Go(func() error {
			err := a.httpSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(closeCtx)
		})
	}

	slog.Info("auricle running",
		"source", a.cfg.Capture.Source,
		"endpoint", a.cfg.Streaming.Endpoint,
		"listen_addr", a.cfg.Server.ListenAddr,
	)

	err := g.Wait()
	if errors.Is(err, errCaptureDone) {
		return nil
	}
	return err
}

// applyReload is the config watcher callback. Restart-only fields are
// ignored; everything in the diff is applied live.
func (a *App) applyReload(old, cur *config.Config) {
	d := config.Diff(old, cur)
	if !d.Any() {
		slog.Info("config reloaded, no live changes")
		return
	}

	if d.LogLevelChanged {
		if a.levelVar != nil {
			a.levelVar.Set(d.NewLogLevel.Slog())
			slog.Info("log level changed", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level change requires restart (no level var wired)")
		}
	}

	if d.VADChanged {
		s := vadSettings(d.NewVAD)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.bridge.UpdateSettings(ctx, s); err != nil {
			slog.Error("failed to apply VAD settings", "err", err)
		} else {
			slog.Info("VAD settings updated",
				"enabled", s.VADEnabled == nil || *s.VADEnabled,
				"sensitivity", d.NewVAD.Sensitivity,
			)
		}
	}

	if d.LatencyWarnChanged {
		a.streamer.SetLatencyWarn(d.NewLatencyWarn.Std())
		slog.Info("latency warn threshold updated", "threshold", d.NewLatencyWarn.Std())
	}
}

// vadSettings converts a VAD config section into a partial engine settings
// update.
func vadSettings(v config.VADConfig) engine.Settings {
	enabled := v.Enabled == nil || *v.Enabled
	th := config.ResolveThresholds(v)
	return engine.Settings{
		VADEnabled: &enabled,
		VADThresholds: &engine.VADThresholdsUpdate{
			Energy:                th.Energy,
			Frequency:             th.Frequency,
			Flatness:              th.Flatness,
			Pitch:                 th.Pitch,
			SilenceToSpeechFrames: th.SilenceToSpeechFrames,
			SpeechToSilenceFrames: th.SpeechToSilenceFrames,
		},
	}
}

// Shutdown tears down all subsystems in order and respects the context
// deadline: if ctx expires before all closers finish, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}

		// Flush the partial chunk before the engine goes away.
		if a.bridge.State() == engine.StateRunning {
			if err := a.bridge.Stop(ctx, true); err != nil {
				slog.Warn("engine stop error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Session exposes the live stream session for status reporting.
func (a *App) Session() *stream.Session {
	return a.streamer.Session()
}
