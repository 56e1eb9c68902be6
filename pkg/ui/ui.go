// Package ui addresses named elements of the salon web page so the
// assistant can point at, press, scroll, and fill them.
//
// The browser announces its addressable elements over the status
// websocket. Commands for unknown IDs fail with ErrElementNotFound and are
// never forwarded.
package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/salon-voice/pkg/protocol"
)

var (
	// ErrElementNotFound indicates no element is registered under the ID.
	ErrElementNotFound = errors.New("ui: element not found")

	// ErrInvalidDirection indicates an unsupported scroll direction.
	ErrInvalidDirection = errors.New("ui: invalid scroll direction")
)

// Scroll directions.
const (
	DirectionUp    = "up"
	DirectionDown  = "down"
	DirectionLeft  = "left"
	DirectionRight = "right"
)

const (
	DefaultHighlight    = 2 * time.Second
	MaxHighlight        = 10 * time.Second
	DefaultScrollAmount = 300
)

// Registry acts on named elements.
type Registry interface {
	Highlight(id string, d time.Duration) error
	Click(id string) error
	Scroll(id, direction string, amount int) error
	SetText(id, value string) error
}

// Surface opens application panels that are not addressed by element ID.
type Surface interface {
	ShowLogin() error
	OpenScheduling(serviceName string) error
}

// highlightCommand clamps the duration into (0, MaxHighlight].
func highlightCommand(id string, d time.Duration) protocol.UICommand {
	if d <= 0 {
		d = DefaultHighlight
	}
	if d > MaxHighlight {
		d = MaxHighlight
	}
	cmd := newCommand(protocol.ActionHighlight, id)
	cmd.DurationMs = int(d / time.Millisecond)
	return cmd
}

func scrollCommand(id, direction string, amount int) (protocol.UICommand, error) {
	switch direction {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
	default:
		return protocol.UICommand{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if amount <= 0 {
		amount = DefaultScrollAmount
	}
	cmd := newCommand(protocol.ActionScroll, id)
	cmd.Direction = direction
	cmd.Amount = amount
	return cmd, nil
}

func newCommand(action, elementID string) protocol.UICommand {
	return protocol.UICommand{
		ID:        uuid.NewString(),
		Action:    action,
		ElementID: elementID,
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrElementNotFound, id)
}
