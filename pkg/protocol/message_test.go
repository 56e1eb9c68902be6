package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "status message",
			msgType: TypeStatus,
			data:    StatusData{Status: "listening", Speaking: true, Enabled: true},
		},
		{
			name:    "ui command",
			msgType: TypeUICommand,
			data:    UICommand{ID: "c1", Action: ActionClick, ElementID: "btn-agendar"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestStatusMessageWireShape(t *testing.T) {
	msg, err := NewStatusMessage("error", false, true, "Permissão do microfone negada.")
	if err != nil {
		t.Fatalf("NewStatusMessage() error = %v", err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "status" {
		t.Errorf("type = %v", raw["type"])
	}
	data := raw["data"].(map[string]any)
	if data["status"] != "error" || data["message"] != "Permissão do microfone negada." {
		t.Errorf("data = %v", data)
	}
}

func TestUICommandOmitsUnusedFields(t *testing.T) {
	msg, err := NewUICommandMessage(UICommand{ID: "c1", Action: ActionClick, ElementID: "btn"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := msg.Bytes()
	for _, field := range []string{"duration_ms", "direction", "amount", "value", "service_name"} {
		if strings.Contains(string(b), field) {
			t.Errorf("click command should omit %q: %s", field, b)
		}
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"register", `{"type":"register","data":{"elements":[{"id":"btn"}]}}`, TypeRegister, false},
		{"unregister", `{"type":"unregister","data":{"ids":["btn"]}}`, TypeUnregister, false},
		{"ping", `{"type":"ping","data":{"id":"p1","ts":1}}`, TypePing, false},
		{"missing type", `{"data":{}}`, "", true},
		{"invalid json", `{"type":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && msg.Type != tt.want {
				t.Errorf("type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	msg, err := NewRegisterMessage(
		Element{ID: "btn-agendar", Label: "Agendar", Kind: "button"},
		Element{ID: "input-nome", Kind: "input"},
	)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := msg.Bytes()

	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	var data RegisterData
	if err := parsed.ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if len(data.Elements) != 2 || data.Elements[0].Label != "Agendar" {
		t.Errorf("elements = %+v", data.Elements)
	}
}

func TestParseDataNil(t *testing.T) {
	msg := &Message{Type: TypePing}
	var data PingData
	if err := msg.ParseData(&data); err != nil {
		t.Errorf("ParseData() with nil data should not error: %v", err)
	}
}

func TestPongLatency(t *testing.T) {
	ping := PingData{ID: "p1", Timestamp: 1000}
	msg, err := NewPongMessage(ping)
	if err != nil {
		t.Fatal(err)
	}
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatal(err)
	}
	if pong.ID != "p1" || pong.PingTS != 1000 {
		t.Errorf("pong = %+v", pong)
	}
	if pong.LatencyMs != pong.PongTS-pong.PingTS {
		t.Errorf("latency mismatch: %+v", pong)
	}
}
