package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// ErrOutputBusy is returned when the render queue is full.
var ErrOutputBusy = errors.New("playback: output queue full")

// SinkOutput renders scheduled voices to an audioio.Sink. Its clock starts
// at zero when the output is created.
type SinkOutput struct {
	sink   audioio.Sink
	logger *slog.Logger
	epoch  time.Time

	mu     sync.Mutex
	closed bool
	queue  chan *sinkVoice
	cancel context.CancelFunc
	done   chan struct{}
}

type sinkVoice struct {
	buf   pcm.Buffer
	at    time.Duration
	ended func()
	sink  audioio.Sink

	once sync.Once
	stop chan struct{}
}

func (v *sinkVoice) Stop() {
	v.once.Do(func() {
		close(v.stop)
		_ = v.sink.Clear()
	})
}

func (v *sinkVoice) stopped() bool {
	select {
	case <-v.stop:
		return true
	default:
		return false
	}
}

// NewSinkOutput starts sink and the render loop.
func NewSinkOutput(ctx context.Context, sink audioio.Sink, logger *slog.Logger) (*SinkOutput, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := sink.Start(ctx); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	o := &SinkOutput{
		sink:   sink,
		logger: logger.With("component", "playback.sink"),
		epoch:  time.Now(),
		queue:  make(chan *sinkVoice, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go o.loop(loopCtx)
	return o, nil
}

// Now returns the time since the output was created.
func (o *SinkOutput) Now() time.Duration { return time.Since(o.epoch) }

// Start queues buf for playback at the given clock time.
func (o *SinkOutput) Start(buf pcm.Buffer, at time.Duration, ended func()) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	v := &sinkVoice{buf: buf, at: at, ended: ended, sink: o.sink, stop: make(chan struct{})}
	select {
	case o.queue <- v:
		return v, nil
	default:
		return nil, ErrOutputBusy
	}
}

// loop plays voices in queue order. Voices arrive with non-decreasing start
// times because the scheduler serializes its cursor.
func (o *SinkOutput) loop(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-o.queue:
			o.play(ctx, v)
		}
	}
}

func (o *SinkOutput) play(ctx context.Context, v *sinkVoice) {
	if !o.waitUntil(ctx, v, v.at) {
		return
	}

	chunk := audioio.Chunk{
		Samples:    v.buf.Interleaved(),
		SampleRate: v.buf.SampleRate,
		Channels:   v.buf.Channels(),
	}
	if err := o.sink.Write(ctx, chunk); err != nil {
		o.logger.Warn("sink write failed", "error", err)
	}

	if !o.waitUntil(ctx, v, v.at+v.buf.Duration()) {
		return
	}
	v.ended()
}

// waitUntil blocks until the clock reaches t. It reports false if the voice
// was stopped or the output closed first.
func (o *SinkOutput) waitUntil(ctx context.Context, v *sinkVoice, t time.Duration) bool {
	d := t - o.Now()
	if d <= 0 {
		return !v.stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !v.stopped()
	case <-v.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Resume is a no-op; device streams are never suspended.
func (o *SinkOutput) Resume() error { return nil }

// Close stops the render loop and closes the sink.
func (o *SinkOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	<-o.done
	return o.sink.Close()
}

var _ Output = (*SinkOutput)(nil)
