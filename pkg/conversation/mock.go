package conversation

import (
	"context"
	"sync"

	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// Mock is a mock implementation of Provider for testing.
type Mock struct {
	callbacks

	mu sync.RWMutex

	connected bool

	// Configurable behavior
	ConnectFunc          func(ctx context.Context, opts SessionOptions) error
	SendAudioFunc        func(frame pcm.WireFrame) error
	SendToolResponseFunc func(resp ToolResponse) error

	// Caps overrides the reported capabilities when set.
	Caps *Capabilities

	// Captured calls for assertions
	AudioSent      []pcm.WireFrame
	ToolResponses  []ToolResponse
	TextSent       []string
	SessionOptions *SessionOptions
	ConnectCalls   int
	CloseCalls     int
}

// NewMock creates a new Mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Provider.
func (m *Mock) Connect(ctx context.Context, opts SessionOptions) error {
	m.mu.Lock()
	m.ConnectCalls++
	m.SessionOptions = &opts
	fn := m.ConnectFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, opts); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close implements Provider.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	m.connected = false
	return nil
}

// IsConnected implements Provider.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SendAudio implements Provider.
func (m *Mock) SendAudio(frame pcm.WireFrame) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(frame)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, frame)
	return nil
}

// SendToolResponse implements Provider.
func (m *Mock) SendToolResponse(resp ToolResponse) error {
	if m.SendToolResponseFunc != nil {
		return m.SendToolResponseFunc(resp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.ToolResponses = append(m.ToolResponses, resp)
	return nil
}

// SendText implements Provider.
func (m *Mock) SendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.TextSent = append(m.TextSent, text)
	return nil
}

// Capabilities implements Provider.
func (m *Mock) Capabilities() Capabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Caps != nil {
		return *m.Caps
	}
	return liveCapabilities()
}

// Sent returns a copy of the audio frames sent so far.
func (m *Mock) Sent() []pcm.WireFrame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]pcm.WireFrame(nil), m.AudioSent...)
}

// Responses returns a copy of the tool responses sent so far.
func (m *Mock) Responses() []ToolResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolResponse(nil), m.ToolResponses...)
}

// Texts returns a copy of the text turns sent so far.
func (m *Mock) Texts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.TextSent...)
}

// Options returns the options passed to the last Connect.
func (m *Mock) Options() *SessionOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SessionOptions
}

// Simulation helpers for testing

// SimulateOpen fires the open callback.
func (m *Mock) SimulateOpen() { m.emitOpen() }

// SimulateAudio fires the audio callback.
func (m *Mock) SimulateAudio(frame pcm.WireFrame) { m.emitAudio(frame) }

// SimulateToolCall fires the tool call callback.
func (m *Mock) SimulateToolCall(calls ...ToolCall) { m.emitToolCall(calls) }

// SimulateInterrupted fires the interruption callback.
func (m *Mock) SimulateInterrupted() { m.emitInterrupted() }

// SimulateTurnComplete fires the turn complete callback.
func (m *Mock) SimulateTurnComplete() { m.emitTurnComplete() }

// SimulateError fires the error callback.
func (m *Mock) SimulateError(err error) { m.emitError(err) }

// SimulateClose fires the remote close callback.
func (m *Mock) SimulateClose() { m.emitClose() }

var _ Provider = (*Mock)(nil)
