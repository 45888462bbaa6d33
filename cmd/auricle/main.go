// Command auricle is a headless real-time voice capture agent: it reads
// audio from a capture source, detects speech, and streams chunks to a
// remote analysis service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/auricle/internal/app"
	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level var stays live so config reloads can change verbosity.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("auricle starting",
		"config", *configPath,
		"source", cfg.Capture.Source,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	if cfg.Telemetry.MetricsEnabled {
		shutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithConfigPath(*configPath),
		app.WithLogLevelVar(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("agent ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Auricle — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Source", captureSummary(cfg))
	printField("Capture rate", fmt.Sprintf("%d Hz", orDefault(cfg.Capture.SampleRate, 48000)))
	printField("Output rate", fmt.Sprintf("%d Hz", orDefault(cfg.Engine.OutputSampleRate, 16000)))
	printField("VAD", vadSummary(cfg))
	printField("Endpoint", cfg.Streaming.Endpoint)
	if cfg.Streaming.BackupEndpoint != "" {
		printField("Backup", cfg.Streaming.BackupEndpoint)
	}
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", name, value)
}

func captureSummary(cfg *config.Config) string {
	if cfg.Capture.Source == "file" {
		return "file " + cfg.Capture.DevicePath
	}
	return cfg.Capture.Source
}

func vadSummary(cfg *config.Config) string {
	if cfg.VAD.Enabled != nil && !*cfg.VAD.Enabled {
		return "(disabled)"
	}
	sens := cfg.VAD.Sensitivity
	if sens == "" {
		sens = "medium"
	}
	if cfg.Streaming.VADFilter {
		return sens + " / gating"
	}
	return sens
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
