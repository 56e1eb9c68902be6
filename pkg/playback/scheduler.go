// Package playback schedules decoded model audio back-to-back on an output
// clock and supports immediate interruption.
//
// The scheduler keeps a nextStartTime cursor. Each enqueued buffer starts at
// max(cursor, now) and advances the cursor by its duration, so units never
// overlap regardless of arrival jitter. Interrupt stops every active unit,
// resets the cursor to zero, and bumps a generation counter so decodes that
// were in flight during the interruption are discarded.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/salon-voice/pkg/pcm"
)

var (
	// ErrClosed is returned after Teardown.
	ErrClosed = errors.New("playback: scheduler closed")

	// ErrStale is returned for a decode that began before the most recent
	// interruption.
	ErrStale = errors.New("playback: stale generation")
)

// Clock reports the current output time.
type Clock interface {
	Now() time.Duration
}

// Output is an audio destination with its own clock.
type Output interface {
	Clock

	// Start schedules buf to begin at the given clock time. ended is called
	// once when playback completes; it is not called for a stopped voice.
	Start(buf pcm.Buffer, at time.Duration, ended func()) (Voice, error)

	// Resume resumes a suspended clock.
	Resume() error

	// Close releases the clock. It is safe to call more than once.
	Close() error
}

// Voice is one started buffer.
type Voice interface {
	Stop()
}

// Unit is a decoded buffer and its scheduled start time.
type Unit struct {
	ID       uuid.UUID
	Start    time.Duration
	Duration time.Duration
	Buffer   pcm.Buffer

	voice Voice
}

// End returns the projected end time of the unit.
func (u *Unit) End() time.Duration { return u.Start + u.Duration }

// Ticket captures the scheduler generation before an asynchronous decode.
type Ticket struct {
	generation uint64
}

// Config holds scheduler configuration.
type Config struct {
	// SampleRate is the rate inbound frames are decoded at.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the channel count inbound frames are decoded with.
	Channels int `yaml:"channels" json:"channels"`
}

// DefaultConfig returns 24 kHz mono.
func DefaultConfig() Config {
	return Config{SampleRate: pcm.OutputSampleRate, Channels: 1}
}

// Stats contains scheduler counters.
type Stats struct {
	Scheduled     int64         `json:"scheduled"`
	Dropped       int64         `json:"dropped"`
	Interruptions int64         `json:"interruptions"`
	Active        int           `json:"active"`
	Cursor        time.Duration `json:"cursor"`
}

// Scheduler owns the active set and cursor for one session.
type Scheduler struct {
	cfg    Config
	out    Output
	logger *slog.Logger

	mu         sync.Mutex
	cursor     time.Duration
	active     map[uuid.UUID]*Unit
	generation uint64
	closed     bool

	notifyMu     sync.Mutex
	lastSpeaking bool
	onSpeaking   func(bool)

	scheduled     atomic.Int64
	dropped       atomic.Int64
	interruptions atomic.Int64
}

// New creates a scheduler rendering to out.
func New(out Output, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("playback: invalid config %+v", cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		out:    out,
		logger: logger.With("component", "playback"),
		active: make(map[uuid.UUID]*Unit),
	}, nil
}

// OnSpeakingChange sets the callback invoked when the active set goes from
// empty to non-empty or back.
func (s *Scheduler) OnSpeakingChange(fn func(speaking bool)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onSpeaking = fn
}

// Reset zeroes the cursor for a fresh session.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = 0
}

// Begin returns a ticket for a decode that is about to start.
func (s *Scheduler) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Ticket{generation: s.generation}
}

// Enqueue decodes a wire frame and schedules it. A frame that fails to
// decode is dropped and the error returned; the scheduler is unaffected.
func (s *Scheduler) Enqueue(w pcm.WireFrame) (*Unit, error) {
	t := s.Begin()
	buf, err := pcm.DecodeFrame(w, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		s.dropped.Add(1)
		return nil, err
	}
	return s.EnqueueDecoded(t, buf)
}

// EnqueueDecoded schedules an already decoded buffer. The cursor read and
// advance happen under one lock, so concurrent callers are strictly
// sequenced.
func (s *Scheduler) EnqueueDecoded(t Ticket, buf pcm.Buffer) (*Unit, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.dropped.Add(1)
		return nil, ErrClosed
	}
	if t.generation != s.generation {
		s.mu.Unlock()
		s.dropped.Add(1)
		return nil, ErrStale
	}

	start := max(s.cursor, s.out.Now())
	u := &Unit{
		ID:       uuid.New(),
		Start:    start,
		Duration: buf.Duration(),
		Buffer:   buf,
	}
	id := u.ID
	voice, err := s.out.Start(buf, start, func() { s.ended(id) })
	if err != nil {
		s.mu.Unlock()
		s.dropped.Add(1)
		return nil, fmt.Errorf("playback: start: %w", err)
	}
	u.voice = voice
	s.active[id] = u
	s.cursor = u.End()
	s.mu.Unlock()

	s.scheduled.Add(1)
	s.logger.Debug("unit scheduled", "start", start, "duration", u.Duration)
	s.notify()
	return u, nil
}

// ended removes a unit from the active set. Removal of a unit that is no
// longer present is a no-op.
func (s *Scheduler) ended(id uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	s.mu.Unlock()

	s.notify()
}

// Interrupt stops every active unit, clears the set, resets the cursor to
// zero, and invalidates outstanding tickets. It returns the number of units
// stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	n := s.stopAllLocked()
	s.mu.Unlock()

	s.interruptions.Add(1)
	if n > 0 {
		s.logger.Info("playback interrupted", "stopped", n)
	}
	s.notify()
	return n
}

func (s *Scheduler) stopAllLocked() int {
	n := len(s.active)
	for id, u := range s.active {
		if u.voice != nil {
			u.voice.Stop()
		}
		delete(s.active, id)
	}
	s.cursor = 0
	s.generation++
	return n
}

// Teardown interrupts and releases the output. Calling it again is a no-op.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.stopAllLocked()
	s.closed = true
	s.mu.Unlock()

	s.notify()
	return s.out.Close()
}

// Speaking reports whether any unit is active.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Active returns the number of active units.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next start time.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Stats returns scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	active, cursor := len(s.active), s.cursor
	s.mu.Unlock()

	return Stats{
		Scheduled:     s.scheduled.Load(),
		Dropped:       s.dropped.Load(),
		Interruptions: s.interruptions.Load(),
		Active:        active,
		Cursor:        cursor,
	}
}

// notify reports edge transitions of Speaking. Notifications are
// serialized and always reflect the state at the time they are delivered.
func (s *Scheduler) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	speaking := s.Speaking()
	if speaking == s.lastSpeaking {
		return
	}
	s.lastSpeaking = speaking
	if s.onSpeaking != nil {
		s.onSpeaking(speaking)
	}
}
