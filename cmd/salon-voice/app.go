package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/salon-voice/internal/config"
	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/capture"
	"github.com/teslashibe/salon-voice/pkg/conversation"
	"github.com/teslashibe/salon-voice/pkg/hub"
	"github.com/teslashibe/salon-voice/pkg/metrics"
	"github.com/teslashibe/salon-voice/pkg/playback"
	"github.com/teslashibe/salon-voice/pkg/salon"
	"github.com/teslashibe/salon-voice/pkg/session"
	"github.com/teslashibe/salon-voice/pkg/tools"
	"github.com/teslashibe/salon-voice/pkg/ui"
	"github.com/teslashibe/salon-voice/pkg/web"
)

// Test tone for the mock audio backend.
const (
	mockToneHz        = 440
	mockToneAmplitude = 0.3
)

// App wires the store, the web front end and the session orchestrator.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store   salon.Store
	metrics *metrics.Collector
	orch    *session.Orchestrator
	server  *web.Server
}

// NewApp validates the configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Init opens the store and builds every component.
func (a *App) Init(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	h := hub.New("salon", a.logger)
	registry := ui.NewRemoteRegistry(h, a.logger)

	// The server is built after the orchestrator but tools need its
	// broadcast hook, so route through a closure.
	var server *web.Server
	toolset := tools.Tools(tools.Config{
		Catalog:      store,
		Appointments: store,
		Registry:     registry,
		Surface:      registry,
		OnAppointment: func(ap salon.Appointment) {
			if server != nil {
				server.PublishAppointment(ap)
			}
		},
		Logger: a.logger,
	})
	dispatcher := tools.NewDispatcher(toolset, a.logger)

	a.metrics = metrics.NewCollector()
	a.metrics.OnUpdate(func(s metrics.Session) {
		a.logger.Info("session ended",
			"session_id", s.ID,
			"status", s.EndStatus,
			"latency", s.FormatLatency(),
			"frames_sent", s.FramesSent,
			"frames_received", s.FramesReceived,
			"tool_calls", s.ToolCalls)
	})
	dispatcher.Observe(func(call conversation.ToolCall, elapsed time.Duration, failed bool) {
		a.metrics.ToolCall(elapsed, failed)
	})

	orch, err := session.New(a.sessionConfig(), session.Deps{
		NewProvider: a.providerFactory(),
		NewSource:   a.newSource,
		NewOutput:   a.newOutput,
		Dispatcher:  dispatcher,
		Catalog:     store,
		Directory:   store,
		Metrics:     a.metrics,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("session: %w", err)
	}
	a.orch = orch

	server = web.NewServer(web.Config{
		Addr:      a.cfg.Server.Addr,
		StaticDir: a.cfg.Server.StaticDir,
		Logger:    a.logger,
	}, orch, store, h, registry)
	a.server = server
	orch.OnChange(server.PublishState)

	if !orch.Enabled() {
		a.logger.Warn("no API key configured, voice assistant disabled")
	}
	a.logger.Info("initialized",
		"transport", a.cfg.Gemini.Transport,
		"audio_backend", a.cfg.Audio.Backend,
		"tools", len(toolset))
	return nil
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.server == nil {
		return errors.New("app not initialized")
	}
	return a.server.Start(ctx)
}

// Shutdown stops any session and closes the store.
func (a *App) Shutdown() {
	if a.orch != nil {
		if err := a.orch.Stop(); err != nil {
			a.logger.Warn("stop session", "error", err)
		}
		s := a.metrics.Summary()
		avg := metrics.Session{ConnectLatency: s.AvgConnect, FirstAudioLatency: s.AvgFirstAudio}
		a.logger.Info("session summary",
			"sessions", s.Sessions,
			"errors", s.Errors,
			"avg_latency", avg.FormatLatency(),
			"frames_sent", s.FramesSent,
			"frames_received", s.FramesReceived)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
}

func (a *App) openStore(ctx context.Context) (salon.Store, error) {
	if dsn := a.cfg.Store.DatabaseURL; dsn != "" {
		store, err := salon.NewPGStore(ctx, dsn, a.logger)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using postgres store")
		return store, nil
	}

	if err := os.MkdirAll(a.cfg.Store.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := salon.NewJSONStore(a.cfg.StorePath())
	if err != nil {
		return nil, err
	}
	a.logger.Info("using json store", "path", a.cfg.StorePath())
	return store, nil
}

func (a *App) sessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.SystemInstruction = a.cfg.Session.SystemInstruction
	cfg.Greeting = a.cfg.Session.Greeting
	cfg.Voice = a.cfg.Gemini.Voice
	cfg.OpenTimeout = a.cfg.Session.OpenTimeout
	cfg.QueueSize = a.cfg.Session.QueueSize
	cfg.Capture = []capture.Option{
		capture.WithFrameSize(a.cfg.Audio.FrameSize),
		capture.WithGain(a.cfg.Audio.Gain),
		capture.WithCompressor(a.cfg.Audio.Compressor),
	}
	cfg.Logger = a.logger
	return cfg
}

// providerFactory returns nil when no API key is configured, which
// disables the assistant.
func (a *App) providerFactory() func() (conversation.Provider, error) {
	if !a.cfg.Enabled() {
		return nil
	}
	kind := conversation.Kind(a.cfg.Gemini.Transport)
	opts := []conversation.Option{
		conversation.WithAPIKey(a.cfg.Gemini.APIKey),
		conversation.WithLogger(a.logger),
	}
	if a.cfg.Gemini.Model != "" {
		opts = append(opts, conversation.WithModel(a.cfg.Gemini.Model))
	}
	if a.cfg.Gemini.Voice != "" {
		opts = append(opts, conversation.WithVoice(a.cfg.Gemini.Voice))
	}
	return func() (conversation.Provider, error) {
		return conversation.New(kind, opts...)
	}
}

func (a *App) newSource() (audioio.Source, error) {
	cfg := audioio.DefaultInputConfig()
	cfg.Backend = audioio.Backend(a.cfg.Audio.Backend)
	cfg.Device = a.cfg.Audio.InputDevice
	if cfg.Backend == audioio.BackendMock {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		// The mock microphone plays a steady test tone.
		return audioio.NewMockSource(cfg, a.logger, audioio.WithSineWave(mockToneHz, mockToneAmplitude)), nil
	}
	return audioio.NewSource(cfg, a.logger)
}

func (a *App) newOutput(ctx context.Context) (playback.Output, error) {
	cfg := audioio.DefaultOutputConfig()
	cfg.Backend = audioio.Backend(a.cfg.Audio.Backend)
	cfg.Device = a.cfg.Audio.OutputDevice
	sink, err := audioio.NewSink(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	out, err := playback.NewSinkOutput(ctx, sink, a.logger)
	if err != nil {
		sink.Close()
		return nil, err
	}
	return out, nil
}
