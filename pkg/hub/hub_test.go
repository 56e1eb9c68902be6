package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

// fakeConn is an in-memory websocket connection.
type fakeConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
	closeCh chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case <-f.closeCh:
		return 0, nil, errors.New("closed")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	if messageType == websocket.TextMessage {
		f.written = append(f.written, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.closeCh)
	})
	return nil
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.written))
	for i, b := range f.written {
		out[i] = string(b)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	waitFor(t, "hub running", h.IsRunning)
	return h
}

func TestHubBroadcast(t *testing.T) {
	h := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	ca := NewClient(h, a)
	cb := NewClient(h, b)
	go ca.Run()
	go cb.Run()

	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]string{"type": "status"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for name, c := range map[string]*fakeConn{"a": a, "b": b} {
		waitFor(t, "message on "+name, func() bool { return len(c.messages()) == 1 })
		if got := c.messages()[0]; got != `{"type":"status"}` {
			t.Errorf("%s got %s", name, got)
		}
	}
}

func TestHubSendTo(t *testing.T) {
	h := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	ca := NewClient(h, a)
	cb := NewClient(h, b)
	go ca.Run()
	go cb.Run()
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	ca.Send(NewJSONMessage([]byte(`"only a"`)))

	waitFor(t, "direct message", func() bool { return len(a.messages()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if len(b.messages()) != 0 {
		t.Errorf("b should not receive a's message: %v", b.messages())
	}
}

func TestHubInboundAndLifecycleHooks(t *testing.T) {
	h := New("test", nil)

	var mu sync.Mutex
	var got []string
	connected := make(chan string, 1)
	disconnected := make(chan string, 1)

	h.OnMessage(func(c *Client, data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})
	h.OnConnect(func(c *Client) { connected <- c.ID })
	h.OnDisconnect(func(c *Client) { disconnected <- c.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := newFakeConn()
	c := NewClient(h, conn)
	go c.Run()

	select {
	case id := <-connected:
		if id != c.ID {
			t.Errorf("connected id = %s, want %s", id, c.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connect hook not called")
	}

	conn.inbound <- []byte(`{"type":"register"}`)
	waitFor(t, "inbound message", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	conn.Close()
	select {
	case id := <-disconnected:
		if id != c.ID {
			t.Errorf("disconnected id = %s, want %s", id, c.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook not called")
	}
	if h.ClientCount() != 0 {
		t.Errorf("client count = %d", h.ClientCount())
	}
}

func TestHubStopReleasesClients(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	conn := newFakeConn()
	c := NewClient(h, conn)
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client pumps did not exit after hub stop")
	}
	if h.IsRunning() {
		t.Error("hub should not be running")
	}

	// Joining a stopped hub must not block.
	late := NewClient(h, newFakeConn())
	go late.Run()
}
