package ui

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/salon-voice/pkg/hub"
	"github.com/teslashibe/salon-voice/pkg/protocol"
)

type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) Broadcast(msg hub.Message) {
	var m protocol.Message
	_ = json.Unmarshal(msg.Data, &m)
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) commands(t *testing.T) []protocol.UICommand {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.UICommand
	for _, m := range r.msgs {
		if m.Type != protocol.TypeUICommand {
			t.Fatalf("unexpected message type %s", m.Type)
		}
		var cmd protocol.UICommand
		if err := m.ParseData(&cmd); err != nil {
			t.Fatal(err)
		}
		out = append(out, cmd)
	}
	return out
}

func register(t *testing.T, r *RemoteRegistry, client string, ids ...string) {
	t.Helper()
	els := make([]protocol.Element, len(ids))
	for i, id := range ids {
		els[i] = protocol.Element{ID: id}
	}
	msg, _ := protocol.NewRegisterMessage(els...)
	b, _ := msg.Bytes()
	if _, err := r.HandleMessage(client, b); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
}

func TestRemoteRegistry(t *testing.T) {
	t.Run("unknown element is not forwarded", func(t *testing.T) {
		rec := &recorder{}
		r := NewRemoteRegistry(rec, nil)

		for name, err := range map[string]error{
			"highlight": r.Highlight("btn-x", time.Second),
			"click":     r.Click("btn-x"),
			"scroll":    r.Scroll("btn-x", DirectionDown, 100),
			"set_text":  r.SetText("btn-x", "Ana"),
		} {
			if !errors.Is(err, ErrElementNotFound) {
				t.Errorf("%s: expected ErrElementNotFound, got %v", name, err)
			}
		}
		if len(rec.commands(t)) != 0 {
			t.Error("nothing should be broadcast for unknown elements")
		}
	})

	t.Run("registered element receives commands", func(t *testing.T) {
		rec := &recorder{}
		r := NewRemoteRegistry(rec, nil)
		register(t, r, "client-1", "btn-agendar", "input-nome", "lista")

		if err := r.Highlight("btn-agendar", 0); err != nil {
			t.Fatal(err)
		}
		if err := r.Click("btn-agendar"); err != nil {
			t.Fatal(err)
		}
		if err := r.Scroll("lista", DirectionUp, 0); err != nil {
			t.Fatal(err)
		}
		if err := r.SetText("input-nome", "Ana"); err != nil {
			t.Fatal(err)
		}

		cmds := rec.commands(t)
		if len(cmds) != 4 {
			t.Fatalf("got %d commands, want 4", len(cmds))
		}
		if cmds[0].Action != protocol.ActionHighlight || cmds[0].DurationMs != 2000 {
			t.Errorf("highlight = %+v", cmds[0])
		}
		if cmds[1].Action != protocol.ActionClick || cmds[1].ElementID != "btn-agendar" {
			t.Errorf("click = %+v", cmds[1])
		}
		if cmds[2].Amount != DefaultScrollAmount || cmds[2].Direction != DirectionUp {
			t.Errorf("scroll = %+v", cmds[2])
		}
		if cmds[3].Value != "Ana" {
			t.Errorf("set_text = %+v", cmds[3])
		}
		if cmds[0].ID == cmds[1].ID {
			t.Error("command IDs should be unique")
		}
	})

	t.Run("invalid scroll direction", func(t *testing.T) {
		r := NewRemoteRegistry(&recorder{}, nil)
		register(t, r, "c", "lista")
		if err := r.Scroll("lista", "sideways", 10); !errors.Is(err, ErrInvalidDirection) {
			t.Errorf("expected ErrInvalidDirection, got %v", err)
		}
	})

	t.Run("unregister and forget", func(t *testing.T) {
		r := NewRemoteRegistry(&recorder{}, nil)
		register(t, r, "a", "one", "two")
		register(t, r, "b", "three")

		msg, _ := protocol.NewUnregisterMessage("one")
		b, _ := msg.Bytes()
		if _, err := r.HandleMessage("a", b); err != nil {
			t.Fatal(err)
		}
		r.ForgetClient("a")

		els := r.Elements()
		if len(els) != 1 || els[0].ID != "three" {
			t.Errorf("elements = %+v", els)
		}
	})

	t.Run("ping gets a pong", func(t *testing.T) {
		r := NewRemoteRegistry(&recorder{}, nil)
		msg, _ := protocol.NewPingMessage("p1")
		b, _ := msg.Bytes()
		reply, err := r.HandleMessage("a", b)
		if err != nil {
			t.Fatal(err)
		}
		if reply == nil || reply.Type != protocol.TypePong {
			t.Errorf("reply = %+v", reply)
		}
	})

	t.Run("garbage is an error", func(t *testing.T) {
		r := NewRemoteRegistry(&recorder{}, nil)
		if _, err := r.HandleMessage("a", []byte("nope")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("panels need no registration", func(t *testing.T) {
		rec := &recorder{}
		r := NewRemoteRegistry(rec, nil)
		if err := r.ShowLogin(); err != nil {
			t.Fatal(err)
		}
		if err := r.OpenScheduling("Escova"); err != nil {
			t.Fatal(err)
		}
		cmds := rec.commands(t)
		if len(cmds) != 2 || cmds[1].ServiceName != "Escova" {
			t.Errorf("commands = %+v", cmds)
		}
	})
}

func TestHighlightClamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 2000},
		{-time.Second, 2000},
		{1500 * time.Millisecond, 1500},
		{time.Minute, 10000},
	}
	for _, tt := range tests {
		if got := highlightCommand("x", tt.in).DurationMs; got != tt.want {
			t.Errorf("highlight(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMemoryRegistry(t *testing.T) {
	m := NewMemoryRegistry("btn")

	if err := m.Click("btn"); err != nil {
		t.Fatal(err)
	}
	if err := m.Click("missing"); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
	if err := m.Scroll("missing", "sideways", 1); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("lookup should fail before direction check, got %v", err)
	}
	if err := m.ShowLogin(); err != nil {
		t.Fatal(err)
	}

	cmds := m.Commands()
	if len(cmds) != 2 || cmds[0].Action != protocol.ActionClick || cmds[1].Action != protocol.ActionShowLogin {
		t.Errorf("commands = %+v", cmds)
	}
}
