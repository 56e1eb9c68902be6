package playback

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// MockOutput is a manually driven Output for tests. Time only moves when
// Advance or Set is called, and ended callbacks fire from those calls.
type MockOutput struct {
	mu      sync.Mutex
	now     time.Duration
	voices  []*mockVoice
	closed  bool
	resumes int

	// StartErr, when set, is returned by Start.
	StartErr error
}

// Scheduled is a snapshot of one started voice.
type Scheduled struct {
	At       time.Duration
	Duration time.Duration
	Stopped  bool
	Ended    bool
}

type mockVoice struct {
	out      *MockOutput
	at       time.Duration
	duration time.Duration
	ended    func()
	stopped  bool
	done     bool
}

func (v *mockVoice) Stop() {
	v.out.mu.Lock()
	defer v.out.mu.Unlock()
	v.stopped = true
}

// NewMockOutput returns a mock output at time zero.
func NewMockOutput() *MockOutput {
	return &MockOutput{}
}

// Now returns the mock clock.
func (m *MockOutput) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Start records a voice.
func (m *MockOutput) Start(buf pcm.Buffer, at time.Duration, ended func()) (Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartErr != nil {
		return nil, m.StartErr
	}
	if m.closed {
		return nil, errors.New("playback: mock output closed")
	}
	v := &mockVoice{out: m, at: at, duration: buf.Duration(), ended: ended}
	m.voices = append(m.voices, v)
	return v, nil
}

// Advance moves the clock forward by d.
func (m *MockOutput) Advance(d time.Duration) {
	m.Set(m.Now() + d)
}

// Set moves the clock to t and fires ended for every voice that has
// finished, in end-time order.
func (m *MockOutput) Set(t time.Duration) {
	m.mu.Lock()
	m.now = t
	var finished []*mockVoice
	for _, v := range m.voices {
		if !v.stopped && !v.done && v.at+v.duration <= t {
			v.done = true
			finished = append(finished, v)
		}
	}
	m.mu.Unlock()

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].at+finished[i].duration < finished[j].at+finished[j].duration
	})
	for _, v := range finished {
		v.ended()
	}
}

// Started returns every voice started so far, in start order.
func (m *MockOutput) Started() []Scheduled {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Scheduled, len(m.voices))
	for i, v := range m.voices {
		out[i] = Scheduled{At: v.at, Duration: v.duration, Stopped: v.stopped, Ended: v.done}
	}
	return out
}

// Playing returns the number of voices audible at the current time.
func (m *MockOutput) Playing() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, v := range m.voices {
		if !v.stopped && !v.done && v.at <= m.now {
			n++
		}
	}
	return n
}

// Resume counts resume calls.
func (m *MockOutput) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return nil
}

// Close marks the output closed.
func (m *MockOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockOutput) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Output = (*MockOutput)(nil)
