package ui

import (
	"sync"
	"time"

	"github.com/teslashibe/salon-voice/pkg/protocol"
)

// MemoryRegistry records commands instead of sending them. It backs tests
// and headless runs.
type MemoryRegistry struct {
	mu       sync.Mutex
	elements map[string]bool
	commands []protocol.UICommand
}

// NewMemoryRegistry creates a registry with the given element IDs.
func NewMemoryRegistry(ids ...string) *MemoryRegistry {
	m := &MemoryRegistry{elements: make(map[string]bool)}
	m.Register(ids...)
	return m
}

// Register makes IDs addressable.
func (m *MemoryRegistry) Register(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.elements[id] = true
	}
}

// Commands returns a copy of the recorded commands.
func (m *MemoryRegistry) Commands() []protocol.UICommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.UICommand(nil), m.commands...)
}

func (m *MemoryRegistry) record(cmd protocol.UICommand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
}

func (m *MemoryRegistry) known(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.elements[id] {
		return notFound(id)
	}
	return nil
}

func (m *MemoryRegistry) Highlight(id string, d time.Duration) error {
	if err := m.known(id); err != nil {
		return err
	}
	m.record(highlightCommand(id, d))
	return nil
}

func (m *MemoryRegistry) Click(id string) error {
	if err := m.known(id); err != nil {
		return err
	}
	m.record(newCommand(protocol.ActionClick, id))
	return nil
}

func (m *MemoryRegistry) Scroll(id, direction string, amount int) error {
	if err := m.known(id); err != nil {
		return err
	}
	cmd, err := scrollCommand(id, direction, amount)
	if err != nil {
		return err
	}
	m.record(cmd)
	return nil
}

func (m *MemoryRegistry) SetText(id, value string) error {
	if err := m.known(id); err != nil {
		return err
	}
	cmd := newCommand(protocol.ActionSetText, id)
	cmd.Value = value
	m.record(cmd)
	return nil
}

func (m *MemoryRegistry) ShowLogin() error {
	m.record(newCommand(protocol.ActionShowLogin, ""))
	return nil
}

func (m *MemoryRegistry) OpenScheduling(serviceName string) error {
	cmd := newCommand(protocol.ActionOpenScheduling, "")
	cmd.ServiceName = serviceName
	m.record(cmd)
	return nil
}

var (
	_ Registry = (*MemoryRegistry)(nil)
	_ Surface  = (*MemoryRegistry)(nil)
)
