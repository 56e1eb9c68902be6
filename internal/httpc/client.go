// Package httpc provides the network dialers and HTTP clients used to reach
// the Live API. Use these instead of http.DefaultClient so connect and TLS
// timeouts are always set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for outbound connections.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultTLSTimeout      = 10 * time.Second
)

// Dialer returns a TCP dialer with the default connect timeout. A positive
// connect overrides it.
func Dialer(connect time.Duration) *net.Dialer {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	return &net.Dialer{
		Timeout:   connect,
		KeepAlive: DefaultKeepAlive,
	}
}

// NewTransport returns a transport that honors proxy environment
// variables.
func NewTransport(connect time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           Dialer(connect).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   DefaultTLSTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// NewClient creates an HTTP client. A zero timeout leaves requests
// unbounded, which long-lived streams need.
func NewClient(timeout, connect time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(connect),
	}
}
