// Package audioio provides microphone capture and speaker output.
//
// This package supports two backends:
//   - PortAudio - real devices, compiled in with the "portaudio" build tag
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically based on build tags, or can be
// explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects PortAudio when it is compiled in, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio device configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FramesPerBuffer is the number of sample frames delivered per device
	// callback.
	FramesPerBuffer int `yaml:"frames_per_buffer" json:"frames_per_buffer"`

	// Device is a device name substring. Empty selects the system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultInputConfig returns the microphone defaults: 16 kHz mono,
// 2048-frame callbacks.
func DefaultInputConfig() Config {
	return Config{
		Backend:         BackendAuto,
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 2048,
	}
}

// DefaultOutputConfig returns the speaker defaults: 24 kHz mono.
func DefaultOutputConfig() Config {
	return Config{
		Backend:         BackendAuto,
		SampleRate:      24000,
		Channels:        1,
		FramesPerBuffer: 1024,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("frames_per_buffer must be positive, got %d", c.FramesPerBuffer)
	}
	return nil
}

// BufferDuration returns the time covered by one device callback.
func (c *Config) BufferDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FramesPerBuffer) * time.Second / time.Duration(c.SampleRate)
}
