package session

import (
	"fmt"

	"github.com/teslashibe/salon-voice/pkg/conversation"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// Status is the lifecycle state of the voice session.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusListening
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusListening:
		return "listening"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether the session holds resources.
func (s Status) Active() bool {
	return s == StatusConnecting || s == StatusListening
}

// EventKind identifies what happened to a session.
type EventKind int

const (
	EventStart EventKind = iota
	EventOpen
	EventStop
	EventFail
	EventClosed
	EventTimeout
	EventInterrupted
	EventToolCall
	EventAudio
)

var eventNames = [...]string{
	EventStart:       "start",
	EventOpen:        "open",
	EventStop:        "stop",
	EventFail:        "fail",
	EventClosed:      "closed",
	EventTimeout:     "timeout",
	EventInterrupted: "interrupted",
	EventToolCall:    "tool_call",
	EventAudio:       "audio",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one input to the state machine.
type Event struct {
	Kind  EventKind
	Err   error
	Frame pcm.WireFrame
	Calls []conversation.ToolCall
}

// Action is the side effect a transition asks for.
type Action int

const (
	// ActionIgnore drops the event.
	ActionIgnore Action = iota

	// ActionAcquire builds clocks, capture chain, microphone and network
	// session.
	ActionAcquire

	// ActionWire connects the capture chain to the network session.
	ActionWire

	// ActionTeardown releases every resource of the session.
	ActionTeardown

	// ActionInterrupt stops playback without leaving listening.
	ActionInterrupt

	// ActionDispatch runs a batch of tool calls.
	ActionDispatch

	// ActionPlay schedules an inbound audio frame.
	ActionPlay

	// ActionReplace releases the running session, then acquires a new one.
	ActionReplace
)

var actionNames = [...]string{
	ActionIgnore:    "ignore",
	ActionAcquire:   "acquire",
	ActionWire:      "wire",
	ActionTeardown:  "teardown",
	ActionInterrupt: "interrupt",
	ActionDispatch:  "dispatch",
	ActionPlay:      "play",
	ActionReplace:   "replace",
}

func (a Action) String() string {
	if int(a) >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Transition returns the next status and the side effect for event k in
// status s. It has no side effects of its own.
func Transition(s Status, k EventKind) (Status, Action) {
	switch k {
	case EventStart:
		switch s {
		case StatusIdle, StatusError:
			return StatusConnecting, ActionAcquire
		case StatusConnecting, StatusListening:
			return StatusConnecting, ActionReplace
		}

	case EventOpen:
		if s == StatusConnecting {
			return StatusListening, ActionWire
		}

	case EventStop:
		switch s {
		case StatusConnecting, StatusListening:
			return StatusIdle, ActionTeardown
		case StatusError:
			return StatusIdle, ActionIgnore
		}

	case EventFail, EventTimeout:
		if s.Active() {
			return StatusError, ActionTeardown
		}

	case EventClosed:
		// A close before the setup was acknowledged means the session never
		// came up.
		switch s {
		case StatusConnecting:
			return StatusError, ActionTeardown
		case StatusListening:
			return StatusIdle, ActionTeardown
		}

	case EventInterrupted:
		if s == StatusListening {
			return s, ActionInterrupt
		}

	case EventToolCall:
		if s.Active() {
			return s, ActionDispatch
		}

	case EventAudio:
		if s == StatusListening {
			return s, ActionPlay
		}
	}
	return s, ActionIgnore
}
