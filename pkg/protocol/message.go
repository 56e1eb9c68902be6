// Package protocol defines the WebSocket message types exchanged with the
// salon web client: session status going out, UI commands going out, and
// element registrations coming back.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → browser messages
	TypeStatus      MessageType = "status"      // Session status / speaking flag
	TypeUICommand   MessageType = "ui_command"  // Element manipulation or panel request
	TypeAppointment MessageType = "appointment" // Appointment created by voice

	// Browser → server messages
	TypeRegister   MessageType = "register"   // Addressable elements appeared
	TypeUnregister MessageType = "unregister" // Addressable elements went away

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Browser Message Types
// =============================================================================

// StatusData reports the session state machine.
type StatusData struct {
	Status   string `json:"status"`            // "idle", "connecting", "listening", "error"
	Speaking bool   `json:"speaking"`          // Assistant audio is playing
	Enabled  bool   `json:"enabled"`           // False when no API key is configured
	Message  string `json:"message,omitempty"` // User-facing reason for "error"
}

// UI actions carried by UICommand.
const (
	ActionHighlight      = "highlight"
	ActionClick          = "click"
	ActionScroll         = "scroll"
	ActionSetText        = "set_text"
	ActionShowLogin      = "show_login"
	ActionOpenScheduling = "open_scheduling"
)

// UICommand asks the browser to act on a named element or open a panel.
type UICommand struct {
	ID          string `json:"id"`                     // Command ID for tracing
	Action      string `json:"action"`                 // One of the Action* constants
	ElementID   string `json:"element_id,omitempty"`   // Registered element address
	DurationMs  int    `json:"duration_ms,omitempty"`  // highlight
	Direction   string `json:"direction,omitempty"`    // scroll: "up", "down", "left", "right"
	Amount      int    `json:"amount,omitempty"`       // scroll, pixels
	Value       string `json:"value,omitempty"`        // set_text
	ServiceName string `json:"service_name,omitempty"` // open_scheduling preselection
}

// AppointmentData announces a booking made by the assistant.
type AppointmentData struct {
	ID           string `json:"id"`
	CustomerName string `json:"customer_name"`
	ServiceName  string `json:"service_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// =============================================================================
// Browser → Server Message Types
// =============================================================================

// Element describes one addressable UI element.
type Element struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Kind  string `json:"kind,omitempty"` // "button", "input", "section", ...
}

// RegisterData lists elements that became addressable.
type RegisterData struct {
	Elements []Element `json:"elements"`
}

// UnregisterData lists element IDs that are no longer addressable.
type UnregisterData struct {
	IDs []string `json:"ids"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
