// Package session runs the voice session lifecycle.
//
// An Orchestrator owns at most one live session at a time. Each Start
// builds every resource from scratch: the output clock and playback
// scheduler, the capture chain, the microphone, and the network session.
// Every exit path (Stop, a transport error, a remote close, an open
// timeout) releases all of them in the same order: capture first, then
// playback, then the network session.
//
// Provider callbacks never act directly. They post events to the session's
// loop goroutine, which feeds them through Transition, so status has a
// single writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/capture"
	"github.com/teslashibe/salon-voice/pkg/conversation"
	"github.com/teslashibe/salon-voice/pkg/metrics"
	"github.com/teslashibe/salon-voice/pkg/playback"
	"github.com/teslashibe/salon-voice/pkg/salon"
	"github.com/teslashibe/salon-voice/pkg/tools"
)

// DefaultOpenTimeout bounds the wait for the service to acknowledge setup.
const DefaultOpenTimeout = 15 * time.Second

// Config holds orchestrator configuration.
type Config struct {
	// SystemInstruction is the base prompt. Context blocks from the
	// catalog and directory are appended to it.
	SystemInstruction string

	// Greeting, when set, is sent as a user text turn once the session
	// opens so the assistant speaks first.
	Greeting string

	// Voice overrides the provider's default voice.
	Voice string

	// OpenTimeout bounds the connecting state.
	OpenTimeout time.Duration

	// QueueSize bounds the outbound microphone queue.
	QueueSize int

	// Capture options applied to every new pipeline.
	Capture []capture.Option

	// Playback configures inbound frame decoding.
	Playback playback.Config

	Logger *slog.Logger
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		OpenTimeout: DefaultOpenTimeout,
		QueueSize:   DefaultQueueSize,
		Playback:    playback.DefaultConfig(),
	}
}

// Deps are the collaborators the orchestrator builds sessions from.
type Deps struct {
	// NewProvider creates a network session. Nil disables the assistant.
	NewProvider func() (conversation.Provider, error)

	// NewSource creates an unopened microphone.
	NewSource func() (audioio.Source, error)

	// NewOutput creates an output clock.
	NewOutput func(ctx context.Context) (playback.Output, error)

	Dispatcher *tools.Dispatcher
	Catalog    salon.Catalog
	Directory  salon.Directory
	Metrics    *metrics.Collector
}

// State is a snapshot for the UI.
type State struct {
	Status    Status `json:"status"`
	Speaking  bool   `json:"speaking"`
	Enabled   bool   `json:"enabled"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Orchestrator drives the session state machine.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	base   *slog.Logger
	logger *slog.Logger

	// txMu serializes transitions together with their side effects.
	txMu sync.Mutex

	mu      sync.Mutex
	status  Status
	lastErr error
	current *run
	gain    float64
	gainSet bool

	pubMu     sync.Mutex
	last      State
	published bool
	onChange  func(State)
}

// New creates an orchestrator in the idle state.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.NewSource == nil || deps.NewOutput == nil {
		return nil, errors.New("session: NewSource and NewOutput are required")
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Playback.SampleRate == 0 && cfg.Playback.Channels == 0 {
		cfg.Playback = playback.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = tools.NewDispatcher(nil, cfg.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}

	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		base:   cfg.Logger,
		logger: cfg.Logger.With("component", "session"),
	}, nil
}

// Enabled reports whether sessions can be started.
func (o *Orchestrator) Enabled() bool { return o.deps.NewProvider != nil }

// Metrics returns the collector sessions report to.
func (o *Orchestrator) Metrics() *metrics.Collector { return o.deps.Metrics }

// OnChange sets a callback invoked whenever the published State changes.
// Calls are serialized.
func (o *Orchestrator) OnChange(fn func(State)) {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	o.onChange = fn
}

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Err returns the error that moved the session to StatusError, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusError {
		return nil
	}
	return o.lastErr
}

// State returns a snapshot of status, speaking flag and message.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	st := State{Status: o.status, Enabled: o.Enabled()}
	r, err := o.current, o.lastErr
	o.mu.Unlock()

	switch {
	case st.Status == StatusError:
		st.Message = Reason(err)
	case !st.Enabled:
		st.Message = MessageDisabled
	}
	if r != nil && st.Status.Active() {
		st.Speaking = r.speaking()
		st.SessionID = r.id
	}
	return st
}

// Speaking reports whether assistant audio is scheduled.
func (o *Orchestrator) Speaking() bool { return o.State().Speaking }

// SetGain changes the microphone gain for the live session and for later
// ones.
func (o *Orchestrator) SetGain(g float64) {
	if g < 0 {
		g = 0
	}
	o.mu.Lock()
	o.gain, o.gainSet = g, true
	r := o.current
	o.mu.Unlock()

	if r != nil {
		r.setGain(g)
	}
}

func (o *Orchestrator) captureOptions() []capture.Option {
	o.mu.Lock()
	defer o.mu.Unlock()
	opts := append([]capture.Option(nil), o.cfg.Capture...)
	if o.gainSet {
		opts = append(opts, capture.WithGain(o.gain))
	}
	return opts
}

// Start opens a new session, releasing the running one first. It returns
// once the setup has been sent; the session reaches StatusListening when
// the service acknowledges it. Any
// failure leaves the orchestrator in StatusError with every resource
// released.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.Enabled() {
		o.logger.Warn("start refused", "error", ErrDisabled)
		o.publish()
		return ErrDisabled
	}

	o.txMu.Lock()
	o.mu.Lock()
	prev, old := o.status, o.current
	next, action := Transition(prev, EventStart)
	o.mu.Unlock()
	switch action {
	case ActionReplace:
		old.teardown()
		o.deps.Metrics.End(StatusIdle.String())
		o.logger.Info("session replaced", "session_id", old.id, "status", prev)
	case ActionAcquire:
	default:
		o.txMu.Unlock()
		return fmt.Errorf("session: cannot start from %v", prev)
	}

	o.mu.Lock()
	r := o.newRun(ctx)
	o.current, o.status, o.lastErr = r, next, nil
	o.mu.Unlock()
	o.deps.Metrics.Begin(r.id)
	o.txMu.Unlock()

	o.logger.Info("session starting", "session_id", r.id)
	o.publish()

	go r.loop()
	if err := r.acquire(); err != nil {
		if !errors.Is(err, ErrStopped) {
			o.logger.Error("session start failed", "session_id", r.id, "error", err)
		}
		o.apply(r, Event{Kind: EventFail, Err: err})
		return err
	}
	return nil
}

// Stop tears the session down and returns to idle. It returns once every
// resource is released. Stopping an idle orchestrator is a no-op.
func (o *Orchestrator) Stop() error {
	o.apply(nil, Event{Kind: EventStop})
	return nil
}

// apply feeds ev through Transition for run r, or the current run when r
// is nil. Events for a run that has been replaced are dropped.
func (o *Orchestrator) apply(r *run, ev Event) {
	o.txMu.Lock()
	defer o.txMu.Unlock()

	o.mu.Lock()
	if r == nil {
		r = o.current
	}
	if r == nil || r != o.current {
		o.mu.Unlock()
		return
	}
	prev := o.status
	o.mu.Unlock()

	next, action := Transition(prev, ev.Kind)
	err := ev.Err
	if ev.Kind == EventClosed && next == StatusError {
		err = conversation.ErrConnectionClosed
	}

	released := false
	switch action {
	case ActionIgnore:
		if ev.Kind == EventFail && ev.Err != nil && !errors.Is(ev.Err, ErrStopped) {
			r.logger.Debug("event ignored", "event", ev.Kind, "status", prev, "error", ev.Err)
		}
	case ActionWire:
		if werr := r.wire(); werr != nil {
			r.logger.Error("session wiring failed", "error", werr)
			next, err = StatusError, werr
			r.teardown()
			released = true
		} else {
			o.deps.Metrics.MarkOpen()
		}
	case ActionTeardown:
		r.teardown()
		released = true
	case ActionInterrupt:
		r.interrupt()
	case ActionDispatch:
		r.dispatch(ev.Calls)
	case ActionPlay:
		r.play(ev.Frame)
	}

	o.mu.Lock()
	o.status = next
	if next == StatusError {
		o.lastErr = err
	}
	o.mu.Unlock()

	if released {
		o.deps.Metrics.End(next.String())
	}
	if next != prev {
		attrs := []any{"session_id", r.id, "from", prev, "to", next, "event", ev.Kind}
		if next == StatusError {
			o.logger.Error("session status", append(attrs, "error", err, "retryable", conversation.IsRetryable(err))...)
		} else {
			o.logger.Info("session status", attrs...)
		}
		o.publish()
	}
}

// publish reports the current State if it differs from the last one.
func (o *Orchestrator) publish() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	st := o.State()
	if o.published && st == o.last {
		return
	}
	o.last, o.published = st, true
	if o.onChange != nil {
		o.onChange(st)
	}
}
