// Package runtime assembles the daemon: config in, wired components out,
// one Start call that blocks until shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speakuplabs/speakupd/internal/api"
	"github.com/speakuplabs/speakupd/internal/audio"
	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/coordinator"
	"github.com/speakuplabs/speakupd/internal/events"
	"github.com/speakuplabs/speakupd/internal/history"
	"github.com/speakuplabs/speakupd/internal/natsserver"
	"github.com/speakuplabs/speakupd/internal/pidfile"
	"github.com/speakuplabs/speakupd/internal/player"
	"github.com/speakuplabs/speakupd/internal/queue"
	"github.com/speakuplabs/speakupd/internal/synth"
)

type Runtime struct {
	cfg     config.Config
	log     *slog.Logger
	version string
}

func New(cfg config.Config, version string, log *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, log: log, version: version}
}

// Start wires everything and blocks until ctx is cancelled or a fatal error
// occurs. Startup order matters: the pid file first so a second instance
// fails before touching shared state, the store next so interrupted messages
// from a previous run are recovered before the queue accepts new ones.
func (r *Runtime) Start(ctx context.Context) error {
	pidPath := filepath.Join(r.cfg.DataDir, "speakupd.pid")
	if err := pidfile.Acquire(pidPath); err != nil {
		return err
	}
	defer pidfile.Release(pidPath)

	telemetryShutdown, metricsHandler, err := setupTelemetry(r.cfg, r.log)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			r.log.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Events, r.cfg.DataDir, r.log)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	publisher, err := events.Connect(ctx, r.cfg.Events, r.log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	store, err := history.Open(ctx, r.cfg.History, r.log)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.log.Error("history store close error", slog.String("error", err.Error()))
		}
	}()

	engine, err := buildEngine(r.cfg.Engine)
	if err != nil {
		return err
	}
	sink, err := buildSink(r.cfg.Audio, r.cfg.Engine)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			r.log.Error("audio sink close error", slog.String("error", err.Error()))
		}
	}()

	q := queue.New(store, r.cfg.Queue, r.log)
	p := player.New(engine, sink, time.Duration(r.cfg.Queue.PlayTimeoutMS)*time.Millisecond, r.log)
	coord := coordinator.New(q, p, publisher, r.log)
	server := api.NewServer(coord, store, publisher, r.cfg.HTTP, metricsHandler, r.version, r.log)

	r.log.Info("daemon started",
		slog.String("version", r.version),
		slog.String("engine", r.cfg.Engine.Mode),
		slog.String("sink", r.cfg.Audio.Sink))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })
	return g.Wait()
}

func buildEngine(cfg config.EngineConfig) (synth.Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return synth.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return synth.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}

func buildSink(cfg config.AudioConfig, engine config.EngineConfig) (audio.Sink, error) {
	switch cfg.Sink {
	case "device":
		return audio.NewDeviceSink(engine.SampleRate, engine.Channels, cfg.BufferMS, cfg.DrainWaitMS)
	case "wav":
		return audio.NewWavSink(cfg.WavDir)
	case "null":
		return audio.NewNullSink(), nil
	default:
		return nil, fmt.Errorf("unknown audio sink %q", cfg.Sink)
	}
}
