package ui

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/salon-voice/pkg/hub"
	"github.com/teslashibe/salon-voice/pkg/protocol"
)

// Broadcaster delivers messages to connected browsers.
type Broadcaster interface {
	Broadcast(msg hub.Message)
}

type registered struct {
	element protocol.Element
	owner   string
}

// RemoteRegistry forwards element commands to the browsers connected to a
// hub. Elements are learned from register/unregister messages.
type RemoteRegistry struct {
	out    Broadcaster
	logger *slog.Logger

	mu       sync.RWMutex
	elements map[string]registered
}

// NewRemoteRegistry creates a registry that broadcasts through out.
func NewRemoteRegistry(out Broadcaster, logger *slog.Logger) *RemoteRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteRegistry{
		out:      out,
		logger:   logger.With("component", "ui.remote"),
		elements: make(map[string]registered),
	}
}

// HandleMessage applies one inbound browser message. It returns a reply for
// the sender, if any.
func (r *RemoteRegistry) HandleMessage(clientID string, data []byte) (*protocol.Message, error) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case protocol.TypeRegister:
		var reg protocol.RegisterData
		if err := msg.ParseData(&reg); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		r.mu.Lock()
		for _, el := range reg.Elements {
			if el.ID == "" {
				continue
			}
			r.elements[el.ID] = registered{element: el, owner: clientID}
		}
		r.mu.Unlock()
		r.logger.Debug("elements registered", "client_id", clientID, "count", len(reg.Elements))

	case protocol.TypeUnregister:
		var unreg protocol.UnregisterData
		if err := msg.ParseData(&unreg); err != nil {
			return nil, fmt.Errorf("unregister: %w", err)
		}
		r.mu.Lock()
		for _, id := range unreg.IDs {
			delete(r.elements, id)
		}
		r.mu.Unlock()

	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		return protocol.NewPongMessage(ping)

	default:
		r.logger.Debug("ignoring browser message", "type", msg.Type)
	}
	return nil, nil
}

// ForgetClient drops every element registered by a disconnected client.
func (r *RemoteRegistry) ForgetClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reg := range r.elements {
		if reg.owner == clientID {
			delete(r.elements, id)
		}
	}
}

// Elements lists registered elements sorted by ID.
func (r *RemoteRegistry) Elements() []protocol.Element {
	r.mu.RLock()
	out := make([]protocol.Element, 0, len(r.elements))
	for _, reg := range r.elements {
		out = append(out, reg.element)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *RemoteRegistry) has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.elements[id]
	return ok
}

func (r *RemoteRegistry) send(cmd protocol.UICommand) error {
	msg, err := protocol.NewUICommandMessage(cmd)
	if err != nil {
		return err
	}
	out, err := hub.FromProtocol(msg)
	if err != nil {
		return err
	}
	r.out.Broadcast(out)
	r.logger.Debug("ui command sent", "action", cmd.Action, "element_id", cmd.ElementID)
	return nil
}

// Highlight outlines an element for d.
func (r *RemoteRegistry) Highlight(id string, d time.Duration) error {
	if !r.has(id) {
		return notFound(id)
	}
	return r.send(highlightCommand(id, d))
}

// Click presses an element.
func (r *RemoteRegistry) Click(id string) error {
	if !r.has(id) {
		return notFound(id)
	}
	return r.send(newCommand(protocol.ActionClick, id))
}

// Scroll scrolls an element by amount pixels.
func (r *RemoteRegistry) Scroll(id, direction string, amount int) error {
	if !r.has(id) {
		return notFound(id)
	}
	cmd, err := scrollCommand(id, direction, amount)
	if err != nil {
		return err
	}
	return r.send(cmd)
}

// SetText replaces the value of an input element.
func (r *RemoteRegistry) SetText(id, value string) error {
	if !r.has(id) {
		return notFound(id)
	}
	cmd := newCommand(protocol.ActionSetText, id)
	cmd.Value = value
	return r.send(cmd)
}

// ShowLogin opens the login/registration panel.
func (r *RemoteRegistry) ShowLogin() error {
	return r.send(newCommand(protocol.ActionShowLogin, ""))
}

// OpenScheduling opens the manual scheduling panel.
func (r *RemoteRegistry) OpenScheduling(serviceName string) error {
	cmd := newCommand(protocol.ActionOpenScheduling, "")
	cmd.ServiceName = serviceName
	return r.send(cmd)
}

var (
	_ Registry = (*RemoteRegistry)(nil)
	_ Surface  = (*RemoteRegistry)(nil)
)
