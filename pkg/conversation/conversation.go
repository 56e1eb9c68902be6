// Package conversation provides the bidirectional streaming session with
// the speech model.
//
// Two Provider implementations talk to the Gemini Live API: GeminiLive
// speaks the BidiGenerateContent websocket protocol directly, and GenAILive
// goes through the official google.golang.org/genai SDK. Mock is for tests.
//
// Example usage:
//
//	provider, err := conversation.New(conversation.KindWebsocket,
//	    conversation.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	provider.OnOpen(func() {
//	    // Start streaming microphone frames
//	})
//
//	provider.OnAudio(func(frame pcm.WireFrame) {
//	    // Schedule for playback
//	})
//
//	provider.OnToolCall(func(calls []conversation.ToolCall) {
//	    for _, c := range calls {
//	        go provider.SendToolResponse(conversation.ToolResponse{ID: c.ID, Name: c.Name, Result: run(c)})
//	    }
//	})
//
//	if err := provider.Connect(ctx, opts); err != nil {
//	    log.Fatal(err)
//	}
package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// Provider is a streaming speech session.
//
// Inbound events are delivered through the On* callbacks, which must be set
// before Connect. Callbacks run on the provider's read goroutine.
type Provider interface {
	// Connect dials the service and sends the session setup. OnOpen fires
	// once the service acknowledges the setup.
	Connect(ctx context.Context, opts SessionOptions) error

	// Close shuts the session down. No callbacks fire after Close returns.
	Close() error

	// IsConnected returns true while the connection is up.
	IsConnected() bool

	// SendAudio streams one microphone frame.
	SendAudio(frame pcm.WireFrame) error

	// SendToolResponse answers one tool call.
	SendToolResponse(resp ToolResponse) error

	// SendText sends a complete user text turn.
	SendText(text string) error

	OnOpen(fn func())
	OnAudio(fn func(frame pcm.WireFrame))
	OnToolCall(fn func(calls []ToolCall))
	OnInterrupted(fn func())
	OnTurnComplete(fn func())
	OnError(fn func(err error))
	OnClose(fn func())

	// Capabilities returns provider capabilities.
	Capabilities() Capabilities
}

// Kind selects a Provider implementation.
type Kind string

const (
	KindWebsocket Kind = "websocket"
	KindGenAI     Kind = "genai"
	KindMock      Kind = "mock"
)

// New creates a Provider of the given kind.
func New(kind Kind, opts ...Option) (Provider, error) {
	switch kind {
	case KindWebsocket, "":
		return NewGeminiLive(opts...)
	case KindGenAI:
		return NewGenAILive(opts...)
	case KindMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrProviderNotSupported, kind)
	}
}

// SessionOptions configures one session.
type SessionOptions struct {
	// SystemInstruction is the system prompt, including any context blocks.
	SystemInstruction string

	// Voice overrides the configured prebuilt voice.
	Voice string

	// Tools are the functions the model may call.
	Tools []FunctionDeclaration
}

// FunctionDeclaration describes a callable function to the model.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the subset of OpenAPI schema the Live API accepts for function
// parameters.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Schema types.
const (
	TypeObject  = "OBJECT"
	TypeString  = "STRING"
	TypeInteger = "INTEGER"
	TypeNumber  = "NUMBER"
	TypeBoolean = "BOOLEAN"
)

// ToolCall is a function call issued by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse is the answer to a ToolCall.
type ToolResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

// ConnectionState represents the connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Capabilities describes what features a provider supports.
type Capabilities struct {
	SupportsToolCalls    bool
	SupportsInterruption bool
	InputSampleRate      int
	OutputSampleRate     int
}

func liveCapabilities() Capabilities {
	return Capabilities{
		SupportsToolCalls:    true,
		SupportsInterruption: true,
		InputSampleRate:      pcm.InputSampleRate,
		OutputSampleRate:     pcm.OutputSampleRate,
	}
}

// rateFromMime extracts the rate parameter from "audio/pcm;rate=24000".
func rateFromMime(mime string, fallback int) int {
	for _, part := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == "rate" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return fallback
}

func isAudioMime(mime string) bool {
	return strings.HasPrefix(mime, "audio/pcm")
}
