package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/teslashibe/salon-voice/pkg/conversation"
)

// NotFoundResult answers calls to names missing from the table.
const NotFoundResult = "Function not found"

// Dispatcher resolves tool calls against a fixed table. Every call yields
// exactly one response carrying the call's ID.
type Dispatcher struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger

	observe func(call conversation.ToolCall, elapsed time.Duration, failed bool)
}

// NewDispatcher builds a dispatcher. Later tools replace earlier ones with
// the same name.
func NewDispatcher(tools []Tool, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		tools:  make(map[string]Tool, len(tools)),
		logger: logger.With("component", "tools.dispatcher"),
	}
	for _, t := range tools {
		if _, dup := d.tools[t.Name]; !dup {
			d.order = append(d.order, t.Name)
		}
		d.tools[t.Name] = t
	}
	return d
}

// Observe sets a callback that runs after every dispatch. failed is true
// for unknown names, handler errors and panics. It must be set before the
// first Dispatch.
func (d *Dispatcher) Observe(fn func(call conversation.ToolCall, elapsed time.Duration, failed bool)) {
	d.observe = fn
}

// Declarations returns the declaration table in registration order.
func (d *Dispatcher) Declarations() []conversation.FunctionDeclaration {
	out := make([]conversation.FunctionDeclaration, len(d.order))
	for i, name := range d.order {
		out[i] = d.tools[name].Declaration()
	}
	return out
}

// Dispatch runs one call. It never panics and never returns without a
// result.
func (d *Dispatcher) Dispatch(ctx context.Context, call conversation.ToolCall) (resp conversation.ToolResponse) {
	resp = conversation.ToolResponse{ID: call.ID, Name: call.Name}
	start := time.Now()
	failed := true
	if d.observe != nil {
		defer func() { d.observe(call, time.Since(start), failed) }()
	}

	tool, ok := d.tools[call.Name]
	if !ok || tool.Handler == nil {
		d.logger.Warn("unknown tool", "name", call.Name, "call_id", call.ID)
		resp.Result = NotFoundResult
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "name", call.Name, "call_id", call.ID, "panic", r)
			resp.Result = fmt.Sprintf("Erro interno ao executar %s.", call.Name)
		}
	}()

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		d.logger.Warn("tool failed", "name", call.Name, "call_id", call.ID, "error", err)
		resp.Result = fmt.Sprintf("Erro ao executar %s: %v", call.Name, err)
		return resp
	}

	d.logger.Info("tool executed", "name", call.Name, "call_id", call.ID, "elapsed", time.Since(start))
	failed = false
	resp.Result = result
	return resp
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// intArg accepts JSON numbers, Go integers, and numeric strings.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
