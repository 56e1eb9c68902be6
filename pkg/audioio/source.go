package audioio

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrPermissionDenied is returned when the OS refuses microphone access.
	ErrPermissionDenied = errors.New("audioio: microphone permission denied")

	// ErrNoDevice is returned when no usable device exists.
	ErrNoDevice = errors.New("audioio: no audio device")

	// ErrClosed is returned by operations on a closed source or sink.
	ErrClosed = errors.New("audioio: closed")

	// ErrBackendUnavailable is returned for backends not compiled in.
	ErrBackendUnavailable = errors.New("audioio: backend not available in this build")
)

// Chunk is one device callback's worth of float samples in [-1, 1],
// interleaved frame-major when Channels > 1.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the chunk.
func (c Chunk) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the duration of this audio chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Mono returns the chunk downmixed to a single channel.
func (c Chunk) Mono() []float32 {
	if c.Channels <= 1 {
		return c.Samples
	}
	out := make([]float32, c.Frames())
	for i := range out {
		var sum float32
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Samples[i*c.Channels+ch]
		}
		out[i] = sum / float32(c.Channels)
	}
	return out
}

// Source is an exclusively held microphone stream.
//
// A Source is single-use: Open acquires the device, Close stops every
// track and releases it. A closed Source cannot be reopened.
type Source interface {
	// Open acquires the device and starts delivering chunks on Stream.
	// It returns ErrPermissionDenied or ErrNoDevice when acquisition fails.
	Open(ctx context.Context) error

	// Stream returns the chunk channel. It is closed by Close.
	Stream() <-chan Chunk

	// Live reports whether any track is still capturing.
	Live() bool

	// Config returns the device configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Live        bool   `json:"live"`
	Backend     string `json:"backend"`
}
