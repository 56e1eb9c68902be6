package conversation

import (
	"log/slog"
	"time"
)

// Gemini Live prebuilt voices.
const (
	VoicePuck   = "Puck"
	VoiceCharon = "Charon"
	VoiceKore   = "Kore"
	VoiceFenrir = "Fenrir"
	VoiceAoede  = "Aoede"
	VoiceZephyr = "Zephyr"
)

const (
	// DefaultModel is a native-audio Live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

// Config holds configuration for conversation providers.
type Config struct {
	// APIKey is the Gemini API key.
	APIKey string

	// Model is the Live model name, with or without the "models/" prefix.
	Model string

	// Voice is the default prebuilt voice.
	Voice string

	// BaseURL overrides the websocket endpoint. For the genai transport it
	// is the API root instead, e.g. "ws://127.0.0.1:8080".
	BaseURL string

	// Timeout bounds the websocket handshake.
	Timeout time.Duration

	// WriteTimeout bounds each outbound message.
	WriteTimeout time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:        DefaultModel,
		Voice:        VoiceZephyr,
		BaseURL:      geminiLiveURL,
		Timeout:      10 * time.Second,
		WriteTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the Live model.
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithVoice sets the default voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		if voice != "" {
			c.Voice = voice
		}
	}
}

// WithBaseURL overrides the endpoint; see Config.BaseURL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithWriteTimeout sets the per-message write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
