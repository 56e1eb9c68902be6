package capture

import (
	"math"
	"sync/atomic"
)

// Stage transforms samples in place.
type Stage interface {
	Name() string
	Process(samples []float32)
}

// Gain is a live-adjustable linear gain stage.
type Gain struct {
	bits atomic.Uint64
}

// NewGain returns a gain stage set to g.
func NewGain(g float64) *Gain {
	s := &Gain{}
	s.Set(g)
	return s
}

// Set changes the gain. The next processed buffer uses the new value.
func (g *Gain) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Value returns the current gain.
func (g *Gain) Value() float64 { return math.Float64frombits(g.bits.Load()) }

func (g *Gain) Name() string { return "gain" }

func (g *Gain) Process(samples []float32) {
	v := float32(g.Value())
	if v == 1 {
		return
	}
	for i := range samples {
		samples[i] *= v
	}
}

// Compressor is a feed-forward, soft-knee dynamic range compressor. Its
// envelope state carries across buffers, so one Compressor serves exactly
// one stream.
type Compressor struct {
	profile  CompressorProfile
	attack   float64
	release  float64
	envelope float64 // smoothed gain reduction in dB, <= 0
}

// NewCompressor builds a compressor for the given sample rate.
func NewCompressor(p CompressorProfile, sampleRate int) *Compressor {
	return &Compressor{
		profile: p,
		attack:  timeCoeff(p.Attack.Seconds(), sampleRate),
		release: timeCoeff(p.Release.Seconds(), sampleRate),
	}
}

func timeCoeff(seconds float64, sampleRate int) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Exp(-1 / (seconds * float64(sampleRate)))
}

func (c *Compressor) Name() string { return "compressor" }

func (c *Compressor) Process(samples []float32) {
	for i, s := range samples {
		level := 20 * math.Log10(math.Max(math.Abs(float64(s)), 1e-9))
		target := c.reduction(level)

		coeff := c.release
		if target < c.envelope {
			coeff = c.attack
		}
		c.envelope = coeff*c.envelope + (1-coeff)*target

		samples[i] = s * float32(math.Pow(10, c.envelope/20))
	}
}

// reduction returns the static gain change in dB for an input level.
func (c *Compressor) reduction(levelDB float64) float64 {
	p := c.profile
	slope := 1/p.Ratio - 1
	over := levelDB - p.ThresholdDB

	switch {
	case 2*over < -p.KneeDB:
		return 0
	case p.KneeDB > 0 && 2*math.Abs(over) <= p.KneeDB:
		x := over + p.KneeDB/2
		return slope * x * x / (2 * p.KneeDB)
	default:
		return slope * over
	}
}

// Chunker accumulates samples and emits fixed-size frames in order.
type Chunker struct {
	buf []float32
	n   int
}

// NewChunker returns a chunker emitting frames of size samples.
func NewChunker(size int) *Chunker {
	return &Chunker{buf: make([]float32, size)}
}

// Write appends samples and calls emit once per completed frame. Each
// emitted slice is a fresh copy owned by the callee.
func (c *Chunker) Write(samples []float32, emit func([]float32)) {
	for len(samples) > 0 {
		n := copy(c.buf[c.n:], samples)
		c.n += n
		samples = samples[n:]

		if c.n == len(c.buf) {
			frame := make([]float32, len(c.buf))
			copy(frame, c.buf)
			c.n = 0
			emit(frame)
		}
	}
}

// Pending returns the number of buffered samples not yet emitted.
func (c *Chunker) Pending() int { return c.n }

// Reset drops buffered samples.
func (c *Chunker) Reset() { c.n = 0 }
