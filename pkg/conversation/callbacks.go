package conversation

import (
	"sync"

	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// callbacks holds event handlers shared by every Provider implementation.
type callbacks struct {
	cbMu sync.RWMutex

	onOpen         func()
	onAudio        func(frame pcm.WireFrame)
	onToolCall     func(calls []ToolCall)
	onInterrupted  func()
	onTurnComplete func()
	onError        func(err error)
	onClose        func()
}

// OnOpen sets the setup-acknowledged callback.
func (c *callbacks) OnOpen(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onOpen = fn
}

// OnAudio sets the audio callback.
func (c *callbacks) OnAudio(fn func(frame pcm.WireFrame)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onAudio = fn
}

// OnToolCall sets the tool call callback.
func (c *callbacks) OnToolCall(fn func(calls []ToolCall)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onToolCall = fn
}

// OnInterrupted sets the barge-in callback.
func (c *callbacks) OnInterrupted(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onInterrupted = fn
}

// OnTurnComplete sets the turn complete callback.
func (c *callbacks) OnTurnComplete(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onTurnComplete = fn
}

// OnError sets the error callback.
func (c *callbacks) OnError(fn func(err error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onError = fn
}

// OnClose sets the remote close callback.
func (c *callbacks) OnClose(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onClose = fn
}

// Emit helpers

func (c *callbacks) emitOpen() {
	c.cbMu.RLock()
	fn := c.onOpen
	c.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *callbacks) emitAudio(frame pcm.WireFrame) {
	c.cbMu.RLock()
	fn := c.onAudio
	c.cbMu.RUnlock()
	if fn != nil {
		fn(frame)
	}
}

func (c *callbacks) emitToolCall(calls []ToolCall) {
	c.cbMu.RLock()
	fn := c.onToolCall
	c.cbMu.RUnlock()
	if fn != nil {
		fn(calls)
	}
}

func (c *callbacks) emitInterrupted() {
	c.cbMu.RLock()
	fn := c.onInterrupted
	c.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *callbacks) emitTurnComplete() {
	c.cbMu.RLock()
	fn := c.onTurnComplete
	c.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *callbacks) emitError(err error) {
	c.cbMu.RLock()
	fn := c.onError
	c.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *callbacks) emitClose() {
	c.cbMu.RLock()
	fn := c.onClose
	c.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}
