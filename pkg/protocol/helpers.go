package protocol

import (
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewStatusMessage creates a status message
func NewStatusMessage(status string, speaking, enabled bool, message string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{
		Status:   status,
		Speaking: speaking,
		Enabled:  enabled,
		Message:  message,
	})
}

// NewUICommandMessage creates a UI command message
func NewUICommandMessage(cmd UICommand) (*Message, error) {
	return NewMessage(TypeUICommand, cmd)
}

// NewAppointmentMessage creates an appointment notification
func NewAppointmentMessage(a AppointmentData) (*Message, error) {
	return NewMessage(TypeAppointment, a)
}

// NewRegisterMessage creates an element registration message
func NewRegisterMessage(elements ...Element) (*Message, error) {
	return NewMessage(TypeRegister, RegisterData{Elements: elements})
}

// NewUnregisterMessage creates an element removal message
func NewUnregisterMessage(ids ...string) (*Message, error) {
	return NewMessage(TypeUnregister, UnregisterData{IDs: ids})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response to a ping
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}
