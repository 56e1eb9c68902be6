// Package capture turns a live microphone stream into a steady sequence of
// encoded PCM frames.
//
// The chain is fixed when the pipeline is built:
//
//	source -> gain -> [compressor] -> chunker -> sink
//
// The compressor is only present when enabled in the config. A pipeline is
// single-use: once closed it must be rebuilt.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

var (
	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("capture: pipeline closed")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("capture: already connected")

	// ErrSourceNotLive is returned when connecting a source that has not
	// been opened.
	ErrSourceNotLive = errors.New("capture: source is not live")
)

// Sink receives each encoded frame. It is called synchronously from the
// processing goroutine and must not block.
type Sink func(pcm.WireFrame)

type state int

const (
	stateBuilt state = iota
	stateConnected
	stateClosed
)

// Pipeline owns the processing chain for one microphone stream.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger

	gain    *Gain
	stages  []Stage
	chunker *Chunker

	mu     sync.Mutex
	state  state
	src    audioio.Source
	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}

	frames atomic.Int64
}

// New builds the gain and optional compressor chain. Nothing is connected
// until Connect.
func New(opts ...Option) (*Pipeline, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pipeline{
		cfg:     *cfg,
		logger:  cfg.Logger.With("component", "capture"),
		gain:    NewGain(cfg.Gain),
		chunker: NewChunker(cfg.FrameSize),
	}
	p.stages = append(p.stages, p.gain)
	if cfg.Compressor {
		p.stages = append(p.stages, NewCompressor(cfg.Profile, cfg.SampleRate))
	}
	return p, nil
}

// Stages returns the names of the processing stages in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// SetGain changes the gain without interrupting the stream.
func (p *Pipeline) SetGain(g float64) {
	if g < 0 {
		g = 0
	}
	p.gain.Set(g)
}

// Gain returns the current gain.
func (p *Pipeline) Gain() float64 { return p.gain.Value() }

// SampleRate returns the rate frames are emitted at.
func (p *Pipeline) SampleRate() int { return p.cfg.SampleRate }

// Frames returns the number of frames emitted so far.
func (p *Pipeline) Frames() int64 { return p.frames.Load() }

// Connect wires an opened source through the chain into sink and starts
// processing its chunks.
func (p *Pipeline) Connect(ctx context.Context, src audioio.Source, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateClosed:
		return ErrClosed
	case stateConnected:
		return ErrAlreadyConnected
	}
	if !src.Live() {
		return ErrSourceNotLive
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.src = src
	p.sink = sink
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = stateConnected

	go p.run(runCtx, src.Stream())

	p.logger.Info("capture connected",
		"source", src.Name(),
		"frame_size", p.cfg.FrameSize,
		"stages", p.Stages(),
	)
	return nil
}

func (p *Pipeline) run(ctx context.Context, chunks <-chan audioio.Chunk) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			samples := chunk.Mono()
			if chunk.SampleRate > 0 && chunk.SampleRate != p.cfg.SampleRate {
				samples = audioio.Resample(samples, chunk.SampleRate, p.cfg.SampleRate)
			}
			p.Process(samples)
		}
	}
}

// Process runs one buffer of mono samples through the chain. It is the
// per-callback entry point and is safe to call directly in tests.
func (p *Pipeline) Process(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateConnected {
		return
	}

	buf := make([]float32, len(samples))
	copy(buf, samples)
	for _, s := range p.stages {
		s.Process(buf)
	}

	p.chunker.Write(buf, func(frame []float32) {
		p.frames.Add(1)
		p.sink(pcm.EncodeFrame(frame))
	})
}

// Close disconnects the chain and stops every track of the source. It is
// safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.state == stateClosed {
		p.mu.Unlock()
		return nil
	}
	prev := p.state
	p.state = stateClosed
	src, cancel, done := p.src, p.cancel, p.done
	p.src, p.sink = nil, nil
	p.chunker.Reset()
	p.mu.Unlock()

	if prev != stateConnected {
		return nil
	}

	cancel()
	<-done
	err := src.Close()

	p.logger.Info("capture closed", "frames", p.frames.Load())
	return err
}
