package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/salon-voice/pkg/conversation"
	"github.com/teslashibe/salon-voice/pkg/protocol"
	"github.com/teslashibe/salon-voice/pkg/salon"
	"github.com/teslashibe/salon-voice/pkg/ui"
)

type fixture struct {
	store    *salon.JSONStore
	registry *ui.MemoryRegistry
	booked   []salon.Appointment
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := salon.NewJSONStore(filepath.Join(t.TempDir(), "salon.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	f := &fixture{store: store, registry: ui.NewMemoryRegistry("btn-agendar", "input-nome", "lista-servicos")}
	f.d = NewDispatcher(Tools(Config{
		Catalog:       store,
		Appointments:  store,
		Registry:      f.registry,
		Surface:       f.registry,
		OnAppointment: func(a salon.Appointment) { f.booked = append(f.booked, a) },
	}), nil)
	return f
}

func (f *fixture) call(name string, args map[string]any) conversation.ToolResponse {
	return f.d.Dispatch(context.Background(), conversation.ToolCall{ID: "call-" + name, Name: name, Args: args})
}

func TestScheduleAppointmentRoundTrip(t *testing.T) {
	f := newFixture(t)

	resp := f.d.Dispatch(context.Background(), conversation.ToolCall{
		ID:   "abc",
		Name: "scheduleAppointment",
		Args: map[string]any{
			"customerName": "Ana",
			"serviceName":  "Corte Feminino",
			"date":         "2025-11-05",
			"time":         "10:00",
		},
	})

	want := conversation.ToolResponse{
		ID:     "abc",
		Name:   "scheduleAppointment",
		Result: "Agendamento para Ana criado com sucesso.",
	}
	if resp != want {
		t.Fatalf("response = %+v, want %+v", resp, want)
	}

	all, _ := f.store.Appointments(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(all))
	}
	if all[0].ID == uuid.Nil {
		t.Error("appointment needs a fresh ID")
	}
	if len(f.booked) != 1 || f.booked[0].ID != all[0].ID {
		t.Errorf("OnAppointment not called with the stored appointment")
	}
}

func TestScheduleAppointmentFailures(t *testing.T) {
	base := map[string]any{
		"customerName": "Ana",
		"serviceName":  "Corte Feminino",
		"date":         "2025-11-05",
		"time":         "10:00",
	}
	with := func(k string, v any) map[string]any {
		out := map[string]any{}
		for key, val := range base {
			out[key] = val
		}
		if v == nil {
			delete(out, k)
		} else {
			out[k] = v
		}
		return out
	}

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"unknown service", with("serviceName", "Massagem"), "Serviço 'Massagem' não encontrado."},
		{"bad date", with("date", "05/11/2025"), "Data inválida '05/11/2025'. Use o formato AAAA-MM-DD."},
		{"bad time", with("time", "10h"), "Horário inválido '10h'. Use o formato HH:MM."},
		{"missing customer", with("customerName", nil), "Informe o nome do cliente para agendar."},
		{"missing service", with("serviceName", nil), "Informe o serviço para agendar."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := f.call("scheduleAppointment", tt.args)
			if resp.Result != tt.want {
				t.Errorf("result = %q, want %q", resp.Result, tt.want)
			}
			all, _ := f.store.Appointments(context.Background())
			if len(all) != 0 {
				t.Errorf("nothing should be booked, got %d", len(all))
			}
		})
	}
}

func TestDispatchTotality(t *testing.T) {
	f := newFixture(t)

	names := []string{"", "unknown", "SCHEDULEAPPOINTMENT", "listServices", "clickElement", "scrollElement"}
	for _, decl := range f.d.Declarations() {
		names = append(names, decl.Name)
	}

	for _, name := range names {
		t.Run("name="+name, func(t *testing.T) {
			call := conversation.ToolCall{ID: uuid.NewString(), Name: name}
			resp := f.d.Dispatch(context.Background(), call)
			if resp.ID != call.ID || resp.Name != call.Name {
				t.Errorf("response not correlated: %+v", resp)
			}
			if resp.Result == "" {
				t.Error("every call needs a result")
			}
		})
	}

	if got := f.call("doesNotExist", nil).Result; got != NotFoundResult {
		t.Errorf("unknown name result = %q", got)
	}
}

func TestDispatchRecoversAndWrapsErrors(t *testing.T) {
	d := NewDispatcher([]Tool{
		{Name: "boom", Handler: func(context.Context, map[string]any) (string, error) { panic("kaboom") }},
		{Name: "fail", Handler: func(context.Context, map[string]any) (string, error) { return "", errors.New("disk full") }},
		{Name: "nohandler"},
	}, nil)

	tests := []struct {
		name string
		want string
	}{
		{"boom", "Erro interno ao executar boom."},
		{"fail", "Erro ao executar fail: disk full"},
		{"nohandler", NotFoundResult},
	}
	for _, tt := range tests {
		resp := d.Dispatch(context.Background(), conversation.ToolCall{ID: "1", Name: tt.name})
		if resp.Result != tt.want || resp.ID != "1" {
			t.Errorf("%s: response = %+v, want result %q", tt.name, resp, tt.want)
		}
	}
}

func TestDispatchObserve(t *testing.T) {
	d := NewDispatcher([]Tool{
		{Name: "ok", Handler: func(context.Context, map[string]any) (string, error) { return "feito", nil }},
		{Name: "boom", Handler: func(context.Context, map[string]any) (string, error) { panic("kaboom") }},
		{Name: "fail", Handler: func(context.Context, map[string]any) (string, error) { return "", errors.New("x") }},
	}, nil)

	failures := map[string]bool{}
	d.Observe(func(call conversation.ToolCall, elapsed time.Duration, failed bool) {
		failures[call.Name] = failed
	})

	for _, name := range []string{"ok", "boom", "fail", "missing"} {
		d.Dispatch(context.Background(), conversation.ToolCall{ID: name, Name: name})
	}

	want := map[string]bool{"ok": false, "boom": true, "fail": true, "missing": true}
	for name, f := range want {
		got, seen := failures[name]
		if !seen || got != f {
			t.Errorf("%s: observed failed=%v (seen %v), want %v", name, got, seen, f)
		}
	}
}

func TestDispatchConcurrent(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]conversation.ToolResponse, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.d.Dispatch(context.Background(), conversation.ToolCall{
				ID:   uuid.NewString(),
				Name: "scheduleAppointment",
				Args: map[string]any{
					"customerName": "Cliente",
					"serviceName":  "Escova",
					"date":         "2025-11-05",
					"time":         "10:00",
				},
			})
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, r := range results {
		if seen[r.ID] {
			t.Errorf("duplicate response id %s", r.ID)
		}
		seen[r.ID] = true
	}
	all, _ := f.store.Appointments(context.Background())
	if len(all) != len(results) {
		t.Errorf("got %d appointments, want %d", len(all), len(results))
	}
}

func TestUITools(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		want   string
		action string
	}{
		{"highlight", "highlightElement", map[string]any{"elementId": "btn-agendar", "durationMs": float64(1500)}, "Elemento 'btn-agendar' destacado.", protocol.ActionHighlight},
		{"highlight missing", "highlightElement", map[string]any{"elementId": "nope"}, "Elemento 'nope' não encontrado.", ""},
		{"click", "clickElement", map[string]any{"elementId": "btn-agendar"}, "Elemento 'btn-agendar' clicado.", protocol.ActionClick},
		{"click missing", "clickElement", map[string]any{"elementId": "nope"}, "Elemento 'nope' não encontrado.", ""},
		{"scroll", "scrollElement", map[string]any{"elementId": "lista-servicos", "direction": "down", "amount": "200"}, "Elemento 'lista-servicos' rolado (down).", protocol.ActionScroll},
		{"scroll bad direction", "scrollElement", map[string]any{"elementId": "lista-servicos", "direction": "sideways"}, "Direção inválida 'sideways'. Use up, down, left ou right.", ""},
		{"type", "typeIntoElement", map[string]any{"elementId": "input-nome", "value": "Ana"}, "Texto inserido em 'input-nome'.", protocol.ActionSetText},
		{"login", "showLoginRegistration", nil, "Tela de login e cadastro aberta.", protocol.ActionShowLogin},
		{"manual scheduling", "openManualScheduling", map[string]any{"serviceName": "escova"}, "Agendamento manual aberto para 'Escova'.", protocol.ActionOpenScheduling},
		{"manual scheduling plain", "openManualScheduling", nil, "Agendamento manual aberto.", protocol.ActionOpenScheduling},
		{"manual scheduling unknown", "openManualScheduling", map[string]any{"serviceName": "Massagem"}, "Serviço 'Massagem' não encontrado.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := f.call(tt.tool, tt.args)
			if resp.Result != tt.want {
				t.Errorf("result = %q, want %q", resp.Result, tt.want)
			}
			cmds := f.registry.Commands()
			if tt.action == "" {
				if len(cmds) != 0 {
					t.Errorf("no command expected, got %+v", cmds)
				}
				return
			}
			if len(cmds) != 1 || cmds[0].Action != tt.action {
				t.Fatalf("commands = %+v, want one %s", cmds, tt.action)
			}
			if tt.tool == "highlightElement" && cmds[0].DurationMs != 1500 {
				t.Errorf("duration = %d", cmds[0].DurationMs)
			}
			if tt.tool == "scrollElement" && cmds[0].Amount != 200 {
				t.Errorf("amount = %d", cmds[0].Amount)
			}
		})
	}
}

func TestCatalogTools(t *testing.T) {
	f := newFixture(t)

	list := f.call("listServices", nil).Result
	if !strings.Contains(list, "Corte Feminino (R$ 80,00, 60 minutos)") {
		t.Errorf("listServices = %q", list)
	}

	free := f.call("checkAvailability", map[string]any{"date": "2025-11-05", "time": "10:00"}).Result
	if free != "O horário 10:00 do dia 2025-11-05 está livre." {
		t.Errorf("free = %q", free)
	}

	f.call("scheduleAppointment", map[string]any{
		"customerName": "Ana", "serviceName": "Escova", "date": "2025-11-05", "time": "10:00",
	})
	busy := f.call("checkAvailability", map[string]any{"date": "2025-11-05", "time": "10:00"}).Result
	if busy != "O horário 10:00 do dia 2025-11-05 já tem 1 agendamento(s)." {
		t.Errorf("busy = %q", busy)
	}

	bad := f.call("checkAvailability", map[string]any{"date": "amanhã", "time": "10:00"}).Result
	if !strings.HasPrefix(bad, "Data inválida") {
		t.Errorf("bad = %q", bad)
	}
}

func TestMissingCollaborators(t *testing.T) {
	d := NewDispatcher(Tools(Config{}), nil)
	for _, decl := range d.Declarations() {
		resp := d.Dispatch(context.Background(), conversation.ToolCall{
			ID:   "x",
			Name: decl.Name,
			Args: map[string]any{
				"customerName": "Ana", "serviceName": "Escova",
				"date": "2025-11-05", "time": "10:00", "elementId": "btn",
			},
		})
		if resp.Result == "" || strings.HasPrefix(resp.Result, "Erro") {
			t.Errorf("%s: result = %q", decl.Name, resp.Result)
		}
	}
}

func TestDeclarations(t *testing.T) {
	d := NewDispatcher(Tools(Config{}), nil)
	decls := d.Declarations()

	want := []string{
		"scheduleAppointment", "showLoginRegistration", "highlightElement", "clickElement",
		"scrollElement", "typeIntoElement", "openManualScheduling", "listServices", "checkAvailability",
	}
	if len(decls) != len(want) {
		t.Fatalf("got %d declarations, want %d", len(decls), len(want))
	}
	for i, name := range want {
		if decls[i].Name != name {
			t.Errorf("decls[%d] = %s, want %s", i, decls[i].Name, name)
		}
		if decls[i].Description == "" || decls[i].Parameters == nil {
			t.Errorf("%s needs a description and a schema", name)
		}
	}

	sched := decls[0].Parameters
	if len(sched.Required) != 4 {
		t.Errorf("scheduleAppointment required = %v", sched.Required)
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"f": float64(12.9), "i": 7, "s": "42", "bad": "x", "b": true}
	tests := map[string]int{"f": 12, "i": 7, "s": 42, "bad": 0, "b": 0, "missing": 0}
	for k, want := range tests {
		if got := intArg(args, k); got != want {
			t.Errorf("intArg(%q) = %d, want %d", k, got, want)
		}
	}
}
