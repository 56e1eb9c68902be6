package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/salon-voice/internal/httpc"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// GeminiLive implements Provider over the Gemini Live websocket protocol.
type GeminiLive struct {
	callbacks

	config *Config
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	state  ConnectionState
	closed bool
	done   chan struct{}

	// wsMu serializes writes; gorilla connections allow one concurrent writer.
	wsMu sync.Mutex

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewGeminiLive creates a websocket Gemini Live provider.
func NewGeminiLive(opts ...Option) (*GeminiLive, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &GeminiLive{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.gemini"),
		state:  StateDisconnected,
	}, nil
}

// Connect dials the Live endpoint and sends the setup message.
func (g *GeminiLive) Connect(ctx context.Context, opts SessionOptions) error {
	g.mu.Lock()
	if g.state != StateDisconnected {
		g.mu.Unlock()
		return ErrAlreadyConnected
	}
	g.state = StateConnecting
	g.closed = false
	g.mu.Unlock()

	endpoint := fmt.Sprintf("%s?key=%s", g.config.BaseURL, url.QueryEscape(g.config.APIKey))

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   httpc.Dialer(g.config.Timeout).DialContext,
		HandshakeTimeout: g.config.Timeout,
	}

	g.logger.Info("connecting to Gemini Live", "model", g.config.Model)

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		g.setState(StateDisconnected)
		if resp != nil {
			return NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return NewConnectionError("dial failed", err, true)
	}

	g.mu.Lock()
	if g.closed {
		g.state = StateDisconnected
		g.mu.Unlock()
		_ = conn.Close()
		return ErrConnectionClosed
	}
	g.conn = conn
	g.done = make(chan struct{})
	g.mu.Unlock()

	if err := g.sendJSON(g.setupMessage(opts)); err != nil {
		_ = conn.Close()
		g.mu.Lock()
		g.conn = nil
		g.state = StateDisconnected
		g.mu.Unlock()
		return NewConnectionError("send setup failed", err, true)
	}

	g.setState(StateConnected)
	go g.handleMessages(conn, g.done)

	return nil
}

// setupMessage builds the BidiGenerateContent setup frame.
func (g *GeminiLive) setupMessage(opts SessionOptions) map[string]any {
	voice := opts.Voice
	if voice == "" {
		voice = g.config.Voice
	}

	model := g.config.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := map[string]any{
		"model": model,
		"generation_config": map[string]any{
			"response_modalities": []string{"AUDIO"},
			"speech_config": map[string]any{
				"voice_config": map[string]any{
					"prebuilt_voice_config": map[string]any{
						"voice_name": voice,
					},
				},
			},
		},
	}

	if opts.SystemInstruction != "" {
		setup["system_instruction"] = map[string]any{
			"parts": []map[string]any{
				{"text": opts.SystemInstruction},
			},
		}
	}

	if len(opts.Tools) > 0 {
		setup["tools"] = []map[string]any{
			{"function_declarations": opts.Tools},
		}
	}

	return map[string]any{"setup": setup}
}

// Close sends a close frame and waits for the read loop to exit.
func (g *GeminiLive) Close() error {
	g.mu.Lock()
	if g.state == StateDisconnected && g.conn == nil {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	conn, done := g.conn, g.done
	g.conn = nil
	g.state = StateDisconnected
	g.mu.Unlock()

	if conn != nil {
		g.wsMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		g.wsMu.Unlock()
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}

	g.logger.Info("disconnected from Gemini Live",
		"sent", g.messagesSent.Load(),
		"received", g.messagesReceived.Load(),
	)
	return nil
}

// IsConnected returns true if connected.
func (g *GeminiLive) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateConnected
}

// SendAudio streams one PCM frame as realtime input.
func (g *GeminiLive) SendAudio(frame pcm.WireFrame) error {
	return g.sendJSON(map[string]any{
		"realtime_input": map[string]any{
			"audio": map[string]any{
				"data":      frame.Data,
				"mime_type": frame.MimeType,
			},
		},
	})
}

// SendToolResponse answers one function call.
func (g *GeminiLive) SendToolResponse(resp ToolResponse) error {
	return g.sendJSON(map[string]any{
		"tool_response": map[string]any{
			"function_responses": []map[string]any{
				{
					"id":       resp.ID,
					"name":     resp.Name,
					"response": map[string]any{"result": resp.Result},
				},
			},
		},
	})
}

// SendText sends a complete user turn.
func (g *GeminiLive) SendText(text string) error {
	return g.sendJSON(map[string]any{
		"client_content": map[string]any{
			"turns": []map[string]any{
				{"role": "user", "parts": []map[string]any{{"text": text}}},
			},
			"turn_complete": true,
		},
	})
}

// Capabilities returns provider capabilities.
func (g *GeminiLive) Capabilities() Capabilities {
	return liveCapabilities()
}

func (g *GeminiLive) setState(s ConnectionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

func (g *GeminiLive) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

// handleMessages reads until the connection fails or is closed.
func (g *GeminiLive) handleMessages(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		g.mu.Lock()
		if g.conn == conn {
			g.conn = nil
			g.state = StateDisconnected
		}
		g.mu.Unlock()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if g.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Info("connection closed by server")
				g.emitClose()
				return
			}
			g.logger.Error("read error", "error", err)
			g.emitError(NewConnectionError("read failed", err, true))
			return
		}

		g.messagesReceived.Add(1)

		if err := g.handleMessage(data); err != nil {
			if g.isClosed() {
				return
			}
			g.logger.Error("bad server message", "error", err)
			g.emitError(err)
			return
		}
	}
}

// serverMessage is the subset of BidiGenerateContentServerMessage we act on.
type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete"`
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"modelTurn"`
		Interrupted  bool `json:"interrupted"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
	ToolCall *struct {
		FunctionCalls []ToolCall `json:"functionCalls"`
	} `json:"toolCall"`
	ToolCallCancellation *json.RawMessage `json:"toolCallCancellation"`
	GoAway               *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// handleMessage dispatches one server message. It returns an error only
// for messages that end the session.
func (g *GeminiLive) handleMessage(data []byte) error {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch {
	case msg.Error != nil:
		return &APIError{Code: msg.Error.Code, Status: msg.Error.Status, Message: msg.Error.Message}

	case msg.SetupComplete != nil:
		g.logger.Info("Gemini Live session ready")
		g.emitOpen()

	case msg.ToolCall != nil:
		calls := msg.ToolCall.FunctionCalls
		for i := range calls {
			if calls[i].Args == nil {
				calls[i].Args = map[string]any{}
			}
			g.logger.Info("tool call received", "name", calls[i].Name, "call_id", calls[i].ID)
		}
		g.emitToolCall(calls)

	case msg.ServerContent != nil:
		sc := msg.ServerContent
		if sc.Interrupted {
			g.logger.Debug("model interrupted")
			g.emitInterrupted()
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || !isAudioMime(part.InlineData.MimeType) || part.InlineData.Data == "" {
					continue
				}
				g.emitAudio(pcm.WireFrame{
					Data:       part.InlineData.Data,
					MimeType:   part.InlineData.MimeType,
					SampleRate: rateFromMime(part.InlineData.MimeType, pcm.OutputSampleRate),
				})
			}
		}
		if sc.TurnComplete {
			g.emitTurnComplete()
		}

	case msg.ToolCallCancellation != nil:
		g.logger.Debug("tool call cancelled")

	case msg.GoAway != nil:
		g.logger.Warn("server going away", "time_left", msg.GoAway.TimeLeft)
	}

	return nil
}

// sendJSON sends a JSON message over the websocket.
func (g *GeminiLive) sendJSON(v any) error {
	g.mu.RLock()
	conn := g.conn
	g.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	if g.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
	}
	if err := conn.WriteJSON(v); err != nil {
		return NewConnectionError("write failed", err, true)
	}
	g.messagesSent.Add(1)
	return nil
}

var _ Provider = (*GeminiLive)(nil)
