package conversation

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/genai"

	"github.com/teslashibe/salon-voice/internal/httpc"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// GenAILive implements Provider with the google.golang.org/genai Live API.
type GenAILive struct {
	callbacks

	config *Config
	logger *slog.Logger

	// writeMu serializes sends; the SDK session writes to its websocket
	// without locking.
	writeMu sync.Mutex

	mu      sync.RWMutex
	session *genai.Session
	state   ConnectionState
	closed  bool
	done    chan struct{}
}

// NewGenAILive creates an SDK-backed Gemini Live provider.
func NewGenAILive(opts ...Option) (*GenAILive, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &GenAILive{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.genai"),
	}, nil
}

// Connect opens a Live session through the SDK.
func (g *GenAILive) Connect(ctx context.Context, opts SessionOptions) error {
	g.mu.Lock()
	if g.state != StateDisconnected {
		g.mu.Unlock()
		return ErrAlreadyConnected
	}
	g.state = StateConnecting
	g.closed = false
	g.mu.Unlock()

	cc := &genai.ClientConfig{
		APIKey:     g.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(0, g.config.Timeout),
	}
	// A custom BaseURL is the API root here; the SDK derives the Live path.
	if g.config.BaseURL != "" && g.config.BaseURL != geminiLiveURL {
		cc.HTTPOptions.BaseURL = g.config.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		g.setState(StateDisconnected)
		return NewConnectionError("create client", err, false)
	}

	g.logger.Info("connecting to Gemini Live via genai", "model", g.config.Model)

	session, err := client.Live.Connect(ctx, g.config.Model, g.connectConfig(opts))
	if err != nil {
		g.setState(StateDisconnected)
		return NewConnectionError("connect failed", err, true)
	}

	g.mu.Lock()
	if g.closed {
		g.state = StateDisconnected
		g.mu.Unlock()
		_ = session.Close()
		return ErrConnectionClosed
	}
	g.session = session
	g.state = StateConnected
	g.done = make(chan struct{})
	done := g.done
	g.mu.Unlock()

	go g.receive(session, done)
	return nil
}

func (g *GenAILive) connectConfig(opts SessionOptions) *genai.LiveConnectConfig {
	voice := opts.Voice
	if voice == "" {
		voice = g.config.Voice
	}

	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemInstruction}},
		}
	}
	if len(opts.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(opts.Tools))
		for i, t := range opts.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenAISchema(t.Parameters),
			}
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func toGenAISchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenAISchema(v)
		}
	}
	return out
}

// receive pumps server messages into callbacks.
func (g *GenAILive) receive(session *genai.Session, done chan struct{}) {
	defer close(done)
	defer func() {
		g.mu.Lock()
		if g.session == session {
			g.session = nil
			g.state = StateDisconnected
		}
		g.mu.Unlock()
	}()

	for {
		msg, err := session.Receive()
		if err != nil {
			if g.isClosed() {
				return
			}
			g.logger.Error("receive error", "error", err)
			g.emitError(NewConnectionError("receive failed", err, true))
			return
		}
		g.handle(msg)
	}
}

func (g *GenAILive) handle(msg *genai.LiveServerMessage) {
	if msg.SetupComplete != nil {
		g.logger.Info("Gemini Live session ready")
		g.emitOpen()
	}

	if msg.ToolCall != nil {
		calls := make([]ToolCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, ToolCall{ID: fc.ID, Name: fc.Name, Args: args})
		}
		g.emitToolCall(calls)
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}
	if sc.Interrupted {
		g.emitInterrupted()
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || !isAudioMime(part.InlineData.MIMEType) {
				continue
			}
			g.emitAudio(pcm.WireFrame{
				Data:       base64.StdEncoding.EncodeToString(part.InlineData.Data),
				MimeType:   part.InlineData.MIMEType,
				SampleRate: rateFromMime(part.InlineData.MIMEType, pcm.OutputSampleRate),
			})
		}
	}
	if sc.TurnComplete {
		g.emitTurnComplete()
	}
}

// Close closes the SDK session and waits for the receive loop.
func (g *GenAILive) Close() error {
	g.mu.Lock()
	if g.state == StateDisconnected && g.session == nil {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	session, done := g.session, g.done
	g.session = nil
	g.state = StateDisconnected
	g.mu.Unlock()

	var err error
	if session != nil {
		err = session.Close()
	}
	if done != nil {
		<-done
	}
	g.logger.Info("disconnected from Gemini Live")
	return err
}

// IsConnected returns true if connected.
func (g *GenAILive) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateConnected
}

func (g *GenAILive) current() (*genai.Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil, ErrNotConnected
	}
	return g.session, nil
}

// send runs fn with the live session while holding the write lock.
func (g *GenAILive) send(fn func(s *genai.Session) error) error {
	s, err := g.current()
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return fn(s)
}

// SendAudio streams one PCM frame as realtime input.
func (g *GenAILive) SendAudio(frame pcm.WireFrame) error {
	raw, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", pcm.ErrInvalidFrame, err)
	}
	return g.send(func(s *genai.Session) error {
		return s.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{Data: raw, MIMEType: frame.MimeType},
		})
	})
}

// SendToolResponse answers one function call.
func (g *GenAILive) SendToolResponse(resp ToolResponse) error {
	return g.send(func(s *genai.Session) error {
		return s.SendToolResponse(genai.LiveToolResponseInput{
			FunctionResponses: []*genai.FunctionResponse{{
				ID:       resp.ID,
				Name:     resp.Name,
				Response: map[string]any{"result": resp.Result},
			}},
		})
	})
}

// SendText sends a user turn.
func (g *GenAILive) SendText(text string) error {
	return g.send(func(s *genai.Session) error {
		return s.SendClientContent(genai.LiveClientContentInput{
			Turns: []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		})
	})
}

// Capabilities returns provider capabilities.
func (g *GenAILive) Capabilities() Capabilities {
	return liveCapabilities()
}

func (g *GenAILive) setState(s ConnectionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

func (g *GenAILive) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

var _ Provider = (*GenAILive)(nil)
