// Package metrics tracks per-session counters and latencies of the voice
// pipeline.
package metrics

import (
	"sync"
	"time"
)

// HistorySize bounds the number of finished sessions kept.
const HistorySize = 100

// Session holds the counters of one voice session.
type Session struct {
	ID string `json:"id"`

	// Timestamps for key events
	StartedAt    time.Time `json:"started_at"`               // Start requested
	OpenedAt     time.Time `json:"opened_at,omitempty"`      // Service acknowledged setup
	FirstAudioAt time.Time `json:"first_audio_at,omitempty"` // First reply frame arrived
	EndedAt      time.Time `json:"ended_at,omitempty"`       // Torn down

	// Computed latencies
	ConnectLatency    time.Duration `json:"connect_latency"`     // Start → open
	FirstAudioLatency time.Duration `json:"first_audio_latency"` // Open → first reply frame
	ToolLatency       time.Duration `json:"tool_latency"`        // Sum over tool calls

	// Counts
	FramesSent     int `json:"frames_sent"`     // Microphone frames handed to the transport
	FramesDropped  int `json:"frames_dropped"`  // Microphone frames dropped by the outbound queue
	FramesReceived int `json:"frames_received"` // Reply frames received
	BadFrames      int `json:"bad_frames"`      // Reply frames that failed to decode
	Interruptions  int `json:"interruptions"`
	ToolCalls      int `json:"tool_calls"`
	ToolFailures   int `json:"tool_failures"`

	// EndStatus is the status the session ended in, "idle" or "error".
	EndStatus string `json:"end_status,omitempty"`
}

// Summary aggregates the recorded history.
type Summary struct {
	Sessions       int           `json:"sessions"`
	Errors         int           `json:"errors"`
	AvgConnect     time.Duration `json:"avg_connect"`
	AvgFirstAudio  time.Duration `json:"avg_first_audio"`
	AvgToolLatency time.Duration `json:"avg_tool_latency"`
	FramesSent     int           `json:"frames_sent"`
	FramesDropped  int           `json:"frames_dropped"`
	FramesReceived int           `json:"frames_received"`
	Interruptions  int           `json:"interruptions"`
	ToolCalls      int           `json:"tool_calls"`
}

// Collector collects metrics for the current session and keeps a bounded
// history. It is goroutine-safe and can be used from multiple callbacks.
type Collector struct {
	mu      sync.Mutex
	current Session
	active  bool
	history []Session

	// Callbacks for metrics updates
	onUpdate func(Session)
}

// NewCollector creates a new collector.
func NewCollector() *Collector {
	return &Collector{
		history: make([]Session, 0, HistorySize),
	}
}

// OnUpdate sets a callback that fires whenever a session ends.
func (c *Collector) OnUpdate(fn func(Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Begin starts a new session record. An unfinished previous record is
// archived as-is.
func (c *Collector) Begin(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.archive("")
	}
	c.current = Session{ID: id, StartedAt: time.Now()}
	c.active = true
}

// MarkOpen records the service acknowledgment.
func (c *Collector) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || !c.current.OpenedAt.IsZero() {
		return
	}
	c.current.OpenedAt = time.Now()
	c.current.ConnectLatency = c.current.OpenedAt.Sub(c.current.StartedAt)
}

// FrameSent counts one outbound microphone frame.
func (c *Collector) FrameSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.current.FramesSent++
	}
}

// FrameDropped counts one outbound frame discarded by backpressure.
func (c *Collector) FrameDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.current.FramesDropped++
	}
}

// FrameReceived counts one inbound reply frame.
func (c *Collector) FrameReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.current.FramesReceived++
	if c.current.FirstAudioAt.IsZero() {
		c.current.FirstAudioAt = time.Now()
		if !c.current.OpenedAt.IsZero() {
			c.current.FirstAudioLatency = c.current.FirstAudioAt.Sub(c.current.OpenedAt)
		}
	}
}

// BadFrame counts one inbound frame that failed to decode.
func (c *Collector) BadFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.current.BadFrames++
	}
}

// Interrupted counts one barge-in.
func (c *Collector) Interrupted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.current.Interruptions++
	}
}

// ToolCall records one dispatched tool call.
func (c *Collector) ToolCall(elapsed time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.current.ToolCalls++
	c.current.ToolLatency += elapsed
	if failed {
		c.current.ToolFailures++
	}
}

// End archives the current session.
func (c *Collector) End(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.archive(status)
}

// archive must be called with the mutex held.
func (c *Collector) archive(status string) {
	c.current.EndedAt = time.Now()
	c.current.EndStatus = status
	c.history = append(c.history, c.current)
	if len(c.history) > HistorySize {
		c.history = c.history[1:]
	}
	c.active = false
	c.notify()
}

// Current returns the current session snapshot and whether one is active.
func (c *Collector) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.active
}

// History returns the finished sessions, oldest first.
func (c *Collector) History() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Session(nil), c.history...)
}

// Summary aggregates the history.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Summary
	var opened, withAudio int
	for _, h := range c.history {
		s.Sessions++
		if h.EndStatus == "error" {
			s.Errors++
		}
		if !h.OpenedAt.IsZero() {
			s.AvgConnect += h.ConnectLatency
			opened++
		}
		if !h.FirstAudioAt.IsZero() {
			s.AvgFirstAudio += h.FirstAudioLatency
			withAudio++
		}
		s.AvgToolLatency += h.ToolLatency
		s.FramesSent += h.FramesSent
		s.FramesDropped += h.FramesDropped
		s.FramesReceived += h.FramesReceived
		s.Interruptions += h.Interruptions
		s.ToolCalls += h.ToolCalls
	}

	if opened > 0 {
		s.AvgConnect /= time.Duration(opened)
	}
	if withAudio > 0 {
		s.AvgFirstAudio /= time.Duration(withAudio)
	}
	if s.ToolCalls > 0 {
		s.AvgToolLatency /= time.Duration(s.ToolCalls)
	}
	return s
}

// notify calls the update callback if set.
// Must be called with mutex held.
func (c *Collector) notify() {
	if c.onUpdate != nil {
		// Copy to avoid races
		session := c.current
		go c.onUpdate(session)
	}
}

// FormatLatency returns a formatted string of the session latencies.
func (s *Session) FormatLatency() string {
	return formatDuration(s.ConnectLatency) + " CONNECT | " +
		formatDuration(s.FirstAudioLatency) + " FIRST AUDIO"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
