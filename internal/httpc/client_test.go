package httpc

import (
	"testing"
	"time"
)

func TestDialer(t *testing.T) {
	tests := []struct {
		connect time.Duration
		want    time.Duration
	}{
		{0, DefaultConnectTimeout},
		{-time.Second, DefaultConnectTimeout},
		{3 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := Dialer(tt.connect).Timeout; got != tt.want {
			t.Errorf("Dialer(%v).Timeout = %v, want %v", tt.connect, got, tt.want)
		}
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient(0, time.Second)
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v, want unbounded", c.Timeout)
	}
	if c.Transport == nil {
		t.Fatal("nil transport")
	}
	if tr := NewTransport(0); tr.Proxy == nil || tr.TLSHandshakeTimeout != DefaultTLSTimeout {
		t.Errorf("transport = %+v", tr)
	}
}
