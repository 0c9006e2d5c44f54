// Command turnsense runs the live turn-completion detector: it captures
// microphone audio into a rolling window, watches for sustained silence, and
// classifies whether the speaker's turn is complete.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emberhill/turnsense/internal/config"
	"github.com/emberhill/turnsense/internal/dashboard"
	"github.com/emberhill/turnsense/internal/eventlog"
	"github.com/emberhill/turnsense/internal/health"
	"github.com/emberhill/turnsense/internal/observe"
	"github.com/emberhill/turnsense/pkg/audio"
	"github.com/emberhill/turnsense/pkg/audio/capture"
	"github.com/emberhill/turnsense/pkg/infer/onnx"
	"github.com/emberhill/turnsense/pkg/melspec"
	"github.com/emberhill/turnsense/pkg/turn"
)

// version is overridden at build time via -ldflags.
var version = "dev"

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
			fmt.Fprintf(os.Stderr, "turnsense: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "turnsense: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("turnsense starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "turnsense",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Classifier engine ─────────────────────────────────────────────────────
	// A missing or unloadable model is a hard startup failure.
	engine, err := onnx.New(onnx.Config{
		ModelPath:      cfg.Model.Path,
		RuntimeLibPath: cfg.Model.RuntimeLib,
	})
	if err != nil {
		slog.Error("failed to load turn classifier", "path", cfg.Model.Path, "err", err)
		return 1
	}
	defer engine.Close()
	slog.Info("turn classifier loaded", "path", cfg.Model.Path)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	extractor, err := melspec.NewExtractor()
	if err != nil {
		slog.Error("failed to build feature extractor", "err", err)
		return 1
	}

	ring := audio.NewRing(8*audio.DefaultSampleRate, audio.DefaultSampleRate)

	log := eventlog.New(0)
	hub := dashboard.NewHub()
	dashboard.BindEventLog(log, hub)

	detector := turn.NewDetector(turn.Config{
		SilenceThreshold:  cfg.Detector.SilenceThreshold,
		SilenceDuration:   time.Duration(cfg.Detector.SilenceDurationMs) * time.Millisecond,
		MinBufferDuration: time.Duration(cfg.Detector.MinBufferMs) * time.Millisecond,
		CompleteThreshold: cfg.Detector.CompleteThreshold,
		PollInterval:      time.Duration(cfg.Detector.PollIntervalMs) * time.Millisecond,
		ResultTTL:         time.Duration(cfg.Detector.ResultTTLMs) * time.Millisecond,
	}, ring, extractor, engine, log, dashboard.Callbacks(hub))

	recorder := capture.NewRecorder(capture.Config{
		SampleRate: cfg.Capture.SampleRate,
		Channels:   cfg.Capture.Channels,
		BlockSize:  cfg.Capture.BlockSize,
	}, ring, detector.NotifyBlock)

	if err := recorder.Start(); err != nil {
		slog.Error("failed to start microphone capture", "err", err)
		return 1
	}
	defer recorder.Stop()
	detector.NotifyRecording(true)

	detector.Start(ctx)
	defer detector.Stop()

	// ── Dashboard ─────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		checks := health.New(
			health.Checker{Name: "model", Check: func(context.Context) error {
				_, err := os.Stat(cfg.Model.Path)
				return err
			}},
			health.BoolChecker("capture", recorder.Running, "capture device not running"),
		)
		srv := dashboard.New(func() dashboard.State {
			return dashboard.State{
				Recording:             recorder.Running(),
				Level:                 ring.Level(),
				BufferDurationSeconds: ring.Duration(),
				LastResult:            detector.LastResult(),
			}
		}, hub, log, checks)

		httpSrv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("dashboard listening", "addr", cfg.Server.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("detector ready — press Ctrl+C to shut down")

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	detector.NotifyRecording(false)
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
