// salon-voice serves the salon's realtime voice assistant: the browser UI
// talks to a local HTTP/websocket API while the microphone and speaker
// stream through a Gemini Live session.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/salon-voice/internal/config"
	"github.com/teslashibe/salon-voice/internal/log"
)

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("main")

	app, err := NewApp(cfg, log.L())
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	logger.Info("starting", "addr", cfg.Server.Addr, "transport", cfg.Gemini.Transport)
	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	addr       string
	transport  string
	backend    string
	compressor bool
	debug      bool

	set map[string]bool
}

// parseFlags parses command line flags. Flags override the config file
// and the environment.
func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", os.Getenv("SALON_CONFIG"), "Path to a YAML config file")
	flag.StringVar(&f.addr, "addr", "", "HTTP listen address (overrides SALON_ADDR)")
	flag.StringVar(&f.transport, "transport", "", "Live API transport: websocket or genai")
	flag.StringVar(&f.backend, "audio", "", "Audio backend: auto, portaudio or mock")
	flag.BoolVar(&f.compressor, "compressor", false, "Enable the microphone compressor stage")
	flag.BoolVar(&f.debug, "debug", false, "Enable verbose debug logging")
	flag.Parse()

	f.set = map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f
}

func (f cliFlags) apply(cfg *config.Config) {
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.transport != "" {
		cfg.Gemini.Transport = f.transport
	}
	if f.backend != "" {
		cfg.Audio.Backend = f.backend
	}
	if f.set["compressor"] {
		cfg.Audio.Compressor = f.compressor
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
}
