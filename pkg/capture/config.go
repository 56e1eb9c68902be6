package capture

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// Config holds capture pipeline configuration.
type Config struct {
	// SampleRate is the rate frames are emitted at.
	SampleRate int

	// FrameSize is the number of samples per emitted frame.
	FrameSize int

	// Gain is the initial linear gain. It can be changed live with SetGain.
	Gain float64

	// Compressor inserts the compressor stage when true. It is read once,
	// when the pipeline is built.
	Compressor bool

	// Profile configures the compressor stage.
	Profile CompressorProfile

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// CompressorProfile is a static compressor curve with envelope timing.
type CompressorProfile struct {
	ThresholdDB float64
	KneeDB      float64
	Ratio       float64
	Attack      time.Duration
	Release     time.Duration
}

// VoiceProfile is tuned for speech captured by a laptop or desk microphone.
func VoiceProfile() CompressorProfile {
	return CompressorProfile{
		ThresholdDB: -50,
		KneeDB:      40,
		Ratio:       12,
		Attack:      3 * time.Millisecond,
		Release:     250 * time.Millisecond,
	}
}

// DefaultConfig returns 2048-sample frames at 16 kHz, unity gain, and no
// compressor.
func DefaultConfig() *Config {
	return &Config{
		SampleRate: pcm.InputSampleRate,
		FrameSize:  2048,
		Gain:       1.0,
		Profile:    VoiceProfile(),
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("capture: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("capture: frame size must be positive, got %d", c.FrameSize)
	}
	if c.Gain < 0 {
		return fmt.Errorf("capture: gain must not be negative, got %v", c.Gain)
	}
	if c.Compressor && c.Profile.Ratio < 1 {
		return fmt.Errorf("capture: compressor ratio must be >= 1, got %v", c.Profile.Ratio)
	}
	return nil
}

// Option is a functional option for configuring the pipeline.
type Option func(*Config)

// WithFrameSize sets the emitted frame length in samples.
func WithFrameSize(n int) Option {
	return func(c *Config) {
		c.FrameSize = n
	}
}

// WithGain sets the initial gain.
func WithGain(g float64) Option {
	return func(c *Config) {
		c.Gain = g
	}
}

// WithCompressor enables or disables the compressor stage.
func WithCompressor(enabled bool) Option {
	return func(c *Config) {
		c.Compressor = enabled
	}
}

// WithProfile overrides the compressor profile.
func WithProfile(p CompressorProfile) Option {
	return func(c *Config) {
		c.Profile = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
