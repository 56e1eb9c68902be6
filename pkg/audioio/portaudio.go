//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// PortAudioSource captures from a PortAudio input device using a callback
// stream, so each device buffer becomes one Chunk.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	opened   bool
	closed   bool
	streamCh chan Chunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PortAudioSource{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.portaudio.source"),
		streamCh: make(chan Chunk, 32),
	}, nil
}

// Open initializes PortAudio and starts the input stream.
func (s *PortAudioSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audioio: initialize portaudio: %w", err)
	}

	dev, err := inputDevice(s.cfg.Device)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = s.cfg.Channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(s.cfg.SampleRate)
	params.FramesPerBuffer = s.cfg.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, s.callback)
	if err != nil {
		_ = portaudio.Terminate()
		return classifyOpenError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return classifyOpenError(err)
	}

	s.stream = stream
	s.opened = true
	s.logger.Info("microphone opened", "device", dev.Name, "rate", s.cfg.SampleRate)
	return nil
}

// callback runs on the PortAudio thread and must not block.
func (s *PortAudioSource) callback(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.streamCh <- Chunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}:
		s.chunksRead.Add(1)
		s.samplesRead.Add(int64(len(samples)))
	default:
		s.overruns.Add(1)
	}
}

// Stream returns the chunk channel.
func (s *PortAudioSource) Stream() <-chan Chunk { return s.streamCh }

// Live reports whether the input stream is running.
func (s *PortAudioSource) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && !s.closed
}

// Config returns the device configuration.
func (s *PortAudioSource) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSource) Name() string { return "portaudio" }

// Close stops the stream and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	opened := s.opened
	close(s.streamCh)
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		_ = stream.Close()
	}
	if opened {
		_ = portaudio.Terminate()
	}
	s.logger.Info("microphone closed", "overruns", s.overruns.Load())
	return nil
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Live:        s.Live(),
		Backend:     "portaudio",
	}
}

// PortAudioSink plays through a blocking PortAudio output stream.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []float32
	running bool

	// generation increments on Clear; a Write started under an older
	// generation stops between device buffers.
	generation atomic.Uint64

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return &PortAudioSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio.sink"),
		buf:    make([]float32, cfg.FramesPerBuffer*cfg.Channels),
	}, nil
}

// Start opens the output stream.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audioio: initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, s.cfg.Channels, float64(s.cfg.SampleRate), s.cfg.FramesPerBuffer, &s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("audioio: start output: %w", err)
	}

	s.stream = stream
	s.running = true
	return nil
}

// Write plays chunk in device-sized buffers, padding the last with silence.
func (s *PortAudioSink) Write(ctx context.Context, chunk Chunk) error {
	gen := s.generation.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrClosed
	}

	samples := chunk.Samples
	for off := 0; off < len(samples); off += len(s.buf) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.generation.Load() != gen {
			return nil
		}
		n := copy(s.buf, samples[off:])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("audioio: write: %w", err)
		}
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(samples)))
	return nil
}

// Clear aborts the current Write at the next buffer boundary.
func (s *PortAudioSink) Clear() error {
	s.generation.Add(1)
	s.clears.Add(1)
	return nil
}

// Config returns the device configuration.
func (s *PortAudioSink) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSink) Name() string { return "portaudio" }

// Close stops the stream and terminates PortAudio.
func (s *PortAudioSink) Close() error {
	s.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	_ = s.stream.Stop()
	_ = s.stream.Close()
	return portaudio.Terminate()
}

// Stats returns sink statistics.
func (s *PortAudioSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Clears:         s.clears.Load(),
		Running:        running,
		Backend:        "portaudio",
	}
}

func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		for _, d := range devices {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
				return d, nil
			}
		}
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil || dev == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return dev, nil
}

func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrNoDevice, err)
}
