// Package config loads salon-voice configuration from an optional YAML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemInstruction is the base prompt when none is configured.
const DefaultSystemInstruction = "Você é a assistente virtual do salão de beleza. " +
	"Responda sempre em português do Brasil, de forma breve e simpática. " +
	"Use as ferramentas para consultar serviços, verificar horários, agendar atendimentos " +
	"e guiar o cliente pela página. Confirme serviço, data e horário antes de agendar."

// Config is the process configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	Voice  string `yaml:"voice"`

	// Transport is "websocket" or "genai".
	Transport string `yaml:"transport"`
}

type AudioConfig struct {
	Backend      string  `yaml:"backend"`
	InputDevice  string  `yaml:"input_device"`
	OutputDevice string  `yaml:"output_device"`
	Gain         float64 `yaml:"gain"`
	Compressor   bool    `yaml:"compressor"`
	FrameSize    int     `yaml:"frame_size"`
}

type SessionConfig struct {
	SystemInstruction string        `yaml:"system_instruction"`
	Greeting          string        `yaml:"greeting"`
	OpenTimeout       time.Duration `yaml:"open_timeout"`
	QueueSize         int           `yaml:"queue_size"`
}

type StoreConfig struct {
	// DataDir holds the JSON store when no database is configured.
	DataDir string `yaml:"data_dir"`

	// DatabaseURL selects the Postgres store.
	DatabaseURL string `yaml:"database_url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads path (if non-empty), expands ${VAR} references, applies
// environment overrides and fills defaults. A missing API key is not an
// error; see Enabled.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := firstEnv("GEMINI_API_KEY", "API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("SALON_TRANSPORT"); v != "" {
		c.Gemini.Transport = v
	}
	if v := os.Getenv("SALON_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SALON_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("SALON_DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("SALON_AUDIO_BACKEND"); v != "" {
		c.Audio.Backend = v
	}
	if v := os.Getenv("SALON_GAIN"); v != "" {
		g, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SALON_GAIN: %w", err)
		}
		c.Audio.Gain = g
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Gemini.Transport == "" {
		c.Gemini.Transport = "websocket"
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = "auto"
	}
	if c.Audio.Gain == 0 {
		c.Audio.Gain = 1
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 2048
	}
	if c.Session.SystemInstruction == "" {
		c.Session.SystemInstruction = DefaultSystemInstruction
	}
	if c.Session.OpenTimeout == 0 {
		c.Session.OpenTimeout = 15 * time.Second
	}
	if c.Session.QueueSize == 0 {
		c.Session.QueueSize = 32
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "./data"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Gemini.Transport {
	case "websocket", "genai":
	default:
		return fmt.Errorf("gemini.transport must be websocket or genai, got %q", c.Gemini.Transport)
	}
	if c.Audio.Gain < 0 {
		return fmt.Errorf("audio.gain must not be negative, got %v", c.Audio.Gain)
	}
	if c.Audio.FrameSize < 0 {
		return fmt.Errorf("audio.frame_size must be positive, got %d", c.Audio.FrameSize)
	}
	return nil
}

// Enabled reports whether an API key is configured.
func (c *Config) Enabled() bool {
	return c.Gemini.APIKey != ""
}

// StorePath returns the JSON store file.
func (c *Config) StorePath() string {
	return filepath.Join(c.Store.DataDir, "salon.json")
}
