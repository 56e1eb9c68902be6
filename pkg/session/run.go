package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/capture"
	"github.com/teslashibe/salon-voice/pkg/conversation"
	"github.com/teslashibe/salon-voice/pkg/pcm"
	"github.com/teslashibe/salon-voice/pkg/playback"
	"github.com/teslashibe/salon-voice/pkg/salon"
)

// run holds the resources of one session. A run is never reused.
type run struct {
	id     string
	o      *Orchestrator
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	done   chan struct{}
	outbox *outbox
	sender sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	out      playback.Output
	sched    *playback.Scheduler
	pipe     *capture.Pipeline
	src      audioio.Source
	provider conversation.Provider
	timer    *time.Timer

	teardownOnce sync.Once
}

// newRun detaches the session lifetime from the caller's context so that a
// finished request does not end the session.
func (o *Orchestrator) newRun(parent context.Context) *run {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	id := uuid.NewString()
	r := &run{
		id:     id,
		o:      o,
		logger: o.logger.With("session_id", id),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	r.outbox = newOutbox(o.cfg.QueueSize, func() {
		o.deps.Metrics.FrameDropped()
		r.logger.Warn("outbound queue full, dropped oldest frame")
	})
	return r
}

// post delivers ev to the loop. It never blocks past teardown.
func (r *run) post(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *run) loop() {
	for {
		select {
		case <-r.done:
			return
		case ev := <-r.events:
			r.o.apply(r, ev)
		}
	}
}

// keep records freshly acquired resources unless the run was torn down in
// the meantime, in which case release runs and ErrStopped is returned.
func (r *run) keep(set func(), release func() error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if release != nil {
			_ = release()
		}
		return ErrStopped
	}
	set()
	r.mu.Unlock()
	return nil
}

// acquire builds every resource in order: output clock, scheduler,
// capture chain, microphone, then the network session.
func (r *run) acquire() error {
	cfg, deps := r.o.cfg, r.o.deps
	sub := r.o.base.With("session_id", r.id)

	out, err := deps.NewOutput(r.ctx)
	if err != nil {
		return fmt.Errorf("session: open output: %w", err)
	}
	if err := out.Resume(); err != nil {
		_ = out.Close()
		return fmt.Errorf("session: resume output: %w", err)
	}
	sched, err := playback.New(out, cfg.Playback, sub)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("session: playback: %w", err)
	}
	sched.OnSpeakingChange(func(bool) { r.o.publish() })
	sched.Reset()
	if err := r.keep(func() { r.out, r.sched = out, sched }, sched.Teardown); err != nil {
		return err
	}

	pipe, err := capture.New(append(r.o.captureOptions(), capture.WithLogger(sub))...)
	if err != nil {
		return fmt.Errorf("session: capture: %w", err)
	}
	if err := r.keep(func() { r.pipe = pipe }, pipe.Close); err != nil {
		return err
	}

	src, err := deps.NewSource()
	if err != nil {
		return fmt.Errorf("session: microphone: %w", err)
	}
	if err := src.Open(r.ctx); err != nil {
		_ = src.Close()
		return fmt.Errorf("session: microphone: %w", err)
	}
	if err := r.keep(func() { r.src = src }, src.Close); err != nil {
		return err
	}

	opts, err := r.sessionOptions()
	if err != nil {
		return err
	}

	provider, err := deps.NewProvider()
	if err != nil {
		return fmt.Errorf("session: provider: %w", err)
	}
	caps := provider.Capabilities()
	if err := checkAudio(caps, pipe.SampleRate(), cfg.Playback.SampleRate); err != nil {
		_ = provider.Close()
		return err
	}
	if !caps.SupportsToolCalls {
		opts.Tools = nil
	}
	r.bind(provider)
	err = r.keep(func() {
		r.provider = provider
		r.timer = time.AfterFunc(cfg.OpenTimeout, func() {
			r.post(Event{Kind: EventTimeout, Err: ErrOpenTimeout})
		})
	}, provider.Close)
	if err != nil {
		return err
	}

	if err := provider.Connect(r.ctx, opts); err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}
	r.logger.Info("session connecting", "tools", len(opts.Tools), "microphone", src.Name())
	return nil
}

func (r *run) sessionOptions() (conversation.SessionOptions, error) {
	cfg, deps := r.o.cfg, r.o.deps

	instruction := cfg.SystemInstruction
	if deps.Catalog != nil || deps.Directory != nil {
		blocks, err := salon.ContextBlocks(r.ctx, deps.Catalog, deps.Directory)
		if err != nil {
			return conversation.SessionOptions{}, fmt.Errorf("session: context: %w", err)
		}
		instruction = strings.TrimSpace(instruction + "\n\n" + blocks)
	}

	return conversation.SessionOptions{
		SystemInstruction: instruction,
		Voice:             cfg.Voice,
		Tools:             deps.Dispatcher.Declarations(),
	}, nil
}

// checkAudio rejects a provider whose stream rates differ from the capture
// and playback rates. A zero rate is unspecified.
func checkAudio(caps conversation.Capabilities, in, out int) error {
	if caps.InputSampleRate != 0 && caps.InputSampleRate != in {
		return fmt.Errorf("%w: provider takes %d Hz, capture emits %d Hz", ErrUnsupportedAudio, caps.InputSampleRate, in)
	}
	if caps.OutputSampleRate != 0 && caps.OutputSampleRate != out {
		return fmt.Errorf("%w: provider sends %d Hz, playback runs at %d Hz", ErrUnsupportedAudio, caps.OutputSampleRate, out)
	}
	return nil
}

// bind routes provider callbacks to the loop.
func (r *run) bind(p conversation.Provider) {
	p.OnOpen(func() { r.post(Event{Kind: EventOpen}) })
	p.OnAudio(func(f pcm.WireFrame) { r.post(Event{Kind: EventAudio, Frame: f}) })
	p.OnToolCall(func(calls []conversation.ToolCall) { r.post(Event{Kind: EventToolCall, Calls: calls}) })
	p.OnInterrupted(func() { r.post(Event{Kind: EventInterrupted}) })
	p.OnTurnComplete(func() { r.logger.Debug("turn complete") })
	p.OnError(func(err error) { r.post(Event{Kind: EventFail, Err: err}) })
	p.OnClose(func() { r.post(Event{Kind: EventClosed}) })
}

// wire connects the microphone through the capture chain to the network
// session and starts the sender.
func (r *run) wire() error {
	r.mu.Lock()
	pipe, src, provider, timer := r.pipe, r.src, r.provider, r.timer
	r.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	r.sender.Add(1)
	go r.send(provider)

	if err := pipe.Connect(r.ctx, src, r.outbox.push); err != nil {
		return fmt.Errorf("session: connect capture: %w", err)
	}
	if g := r.o.cfg.Greeting; g != "" {
		if err := provider.SendText(g); err != nil {
			return fmt.Errorf("session: greeting: %w", err)
		}
	}
	r.logger.Info("session listening")
	return nil
}

// send drains the outbox in capture order.
func (r *run) send(p conversation.Provider) {
	defer r.sender.Done()
	for {
		select {
		case <-r.done:
			return
		case f := <-r.outbox.ch:
			if err := p.SendAudio(f); err != nil {
				r.post(Event{Kind: EventFail, Err: fmt.Errorf("session: send audio: %w", err)})
				return
			}
			r.o.deps.Metrics.FrameSent()
		}
	}
}

func (r *run) scheduler() *playback.Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sched
}

func (r *run) speaking() bool {
	if s := r.scheduler(); s != nil {
		return s.Speaking()
	}
	return false
}

func (r *run) setGain(g float64) {
	r.mu.Lock()
	pipe := r.pipe
	r.mu.Unlock()
	if pipe != nil {
		pipe.SetGain(g)
	}
}

// play schedules one inbound frame. A frame that fails to decode is dropped
// and the session continues.
func (r *run) play(f pcm.WireFrame) {
	m := r.o.deps.Metrics
	m.FrameReceived()

	sched := r.scheduler()
	if sched == nil {
		return
	}
	if _, err := sched.Enqueue(f); err != nil {
		if errors.Is(err, pcm.ErrInvalidFrame) || errors.Is(err, pcm.ErrTruncatedFrame) {
			m.BadFrame()
			r.logger.Warn("dropping bad frame", "error", err)
			return
		}
		r.logger.Debug("frame not scheduled", "error", err)
	}
}

func (r *run) interrupt() {
	sched := r.scheduler()
	if sched == nil {
		return
	}
	n := sched.Interrupt()
	r.o.deps.Metrics.Interrupted()
	r.logger.Info("barge-in", "stopped", n)
}

// dispatch runs each call on its own goroutine and answers it over the
// network session. Responses are not ordered relative to each other.
func (r *run) dispatch(calls []conversation.ToolCall) {
	r.mu.Lock()
	provider := r.provider
	r.mu.Unlock()

	for _, call := range calls {
		go func() {
			resp := r.o.deps.Dispatcher.Dispatch(r.ctx, call)
			if err := provider.SendToolResponse(resp); err != nil {
				r.logger.Warn("tool response not sent", "call_id", call.ID, "name", call.Name, "error", err)
			}
		}()
	}
}

// teardown releases capture, then playback, then the network session. It
// runs once; concurrent callers wait for the first to finish.
func (r *run) teardown() {
	r.teardownOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		pipe, src, sched, out, provider, timer := r.pipe, r.src, r.sched, r.out, r.provider, r.timer
		r.mu.Unlock()

		close(r.done)
		if timer != nil {
			timer.Stop()
		}

		if pipe != nil {
			if err := pipe.Close(); err != nil {
				r.logger.Warn("capture close failed", "error", err)
			}
		}
		if src != nil {
			if err := src.Close(); err != nil {
				r.logger.Warn("microphone close failed", "error", err)
			}
		}
		switch {
		case sched != nil:
			if err := sched.Teardown(); err != nil {
				r.logger.Warn("playback teardown failed", "error", err)
			}
		case out != nil:
			_ = out.Close()
		}
		if provider != nil {
			if err := provider.Close(); err != nil {
				r.logger.Warn("provider close failed", "error", err)
			}
		}

		r.cancel()
		r.sender.Wait()
		r.logger.Info("session released")
	})
}
