package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

// frame returns a 24 kHz mono wire frame of n samples.
func frame(n int) pcm.WireFrame {
	w := pcm.EncodeFrame(make([]float32, n))
	w.SampleRate = pcm.OutputSampleRate
	return w
}

func dur(n int) time.Duration {
	return time.Duration(n) * time.Second / pcm.OutputSampleRate
}

func newScheduler(t *testing.T) (*Scheduler, *MockOutput) {
	t.Helper()
	out := NewMockOutput()
	s, err := New(out, DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return s, out
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(NewMockOutput(), Config{}, nil); err == nil {
		t.Error("expected error for zero config")
	}
}

func TestEnqueue_Gapless(t *testing.T) {
	s, out := newScheduler(t)

	for _, n := range []int{2048, 1024, 4096} {
		if _, err := s.Enqueue(frame(n)); err != nil {
			t.Fatal(err)
		}
	}

	started := out.Started()
	want := []time.Duration{0, dur(2048), dur(2048) + dur(1024)}
	for i, sc := range started {
		if sc.At != want[i] {
			t.Errorf("unit %d starts at %v, want %v", i, sc.At, want[i])
		}
	}
	if s.Cursor() != dur(2048)+dur(1024)+dur(4096) {
		t.Errorf("Cursor = %v", s.Cursor())
	}
}

func TestEnqueue_LateArrivalStartsNow(t *testing.T) {
	s, out := newScheduler(t)

	_, _ = s.Enqueue(frame(2400)) // 100ms
	out.Set(500 * time.Millisecond)

	u, err := s.Enqueue(frame(2400))
	if err != nil {
		t.Fatal(err)
	}
	if u.Start != 500*time.Millisecond {
		t.Errorf("Start = %v, want 500ms", u.Start)
	}
}

func TestEnqueue_ConcurrentNoOverlap(t *testing.T) {
	s, _ := newScheduler(t)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		units []*Unit
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			u, err := s.Enqueue(frame(480 + n*24))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			units = append(units, u)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Slice(units, func(i, j int) bool { return units[i].Start < units[j].Start })
	for i := 1; i < len(units); i++ {
		if units[i].Start < units[i-1].End() {
			t.Fatalf("unit %d starts at %v before previous end %v", i, units[i].Start, units[i-1].End())
		}
	}
}

func TestSpeaking_TracksActiveSet(t *testing.T) {
	s, out := newScheduler(t)

	var (
		mu    sync.Mutex
		edges []bool
	)
	s.OnSpeakingChange(func(v bool) {
		mu.Lock()
		edges = append(edges, v)
		mu.Unlock()
	})

	check := func(when string) {
		t.Helper()
		if s.Speaking() != (s.Active() > 0) {
			t.Fatalf("%s: Speaking=%v Active=%d", when, s.Speaking(), s.Active())
		}
	}

	check("initial")
	_, _ = s.Enqueue(frame(2400))
	check("after enqueue")
	if !s.Speaking() {
		t.Fatal("must be speaking after enqueue")
	}
	_, _ = s.Enqueue(frame(2400))

	out.Advance(100 * time.Millisecond)
	check("after first ended")
	if !s.Speaking() {
		t.Fatal("second unit still active")
	}

	out.Advance(100 * time.Millisecond)
	check("after second ended")
	if s.Speaking() {
		t.Fatal("must not be speaking once all units ended")
	}

	_, _ = s.Enqueue(frame(2400))
	s.Interrupt()
	check("after interrupt")
	if s.Speaking() {
		t.Fatal("must not be speaking after interrupt")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true, false}
	if len(edges) != len(want) {
		t.Fatalf("edges = %v, want %v", edges, want)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edges = %v, want %v", edges, want)
		}
	}
}

func TestInterrupt_Idempotent(t *testing.T) {
	s, _ := newScheduler(t)

	if n := s.Interrupt(); n != 0 {
		t.Errorf("Interrupt on empty set stopped %d", n)
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor = %v", s.Cursor())
	}

	_, _ = s.Enqueue(frame(2048))
	if n := s.Interrupt(); n != 1 {
		t.Errorf("Interrupt stopped %d, want 1", n)
	}
	if n := s.Interrupt(); n != 0 {
		t.Errorf("second Interrupt stopped %d, want 0", n)
	}
	if s.Cursor() != 0 || s.Active() != 0 {
		t.Errorf("after double interrupt: cursor=%v active=%d", s.Cursor(), s.Active())
	}
}

func TestInterrupt_BargeIn(t *testing.T) {
	s, out := newScheduler(t)

	first, _ := s.Enqueue(frame(4096))
	second, _ := s.Enqueue(frame(4096))
	projectedEnd := second.End()

	out.Advance(10 * time.Millisecond)
	if out.Playing() != 1 {
		t.Fatalf("Playing = %d, want first unit audible", out.Playing())
	}

	s.Interrupt()

	for i, sc := range out.Started() {
		if !sc.Stopped {
			t.Errorf("unit %d not stopped", i)
		}
	}
	if out.Playing() != 0 || s.Active() != 0 || s.Cursor() != 0 {
		t.Fatalf("after interrupt: playing=%d active=%d cursor=%v", out.Playing(), s.Active(), s.Cursor())
	}

	next, err := s.Enqueue(frame(2048))
	if err != nil {
		t.Fatal(err)
	}
	if next.Start != out.Now() {
		t.Errorf("next starts at %v, want now (%v)", next.Start, out.Now())
	}
	if next.Start >= projectedEnd || next.Start >= first.End() {
		t.Errorf("next start %v was appended after interrupted audio", next.Start)
	}

	// A stale ended for the stopped units must not disturb the new one.
	s.ended(first.ID)
	s.ended(second.ID)
	if s.Active() != 1 {
		t.Errorf("Active = %d, want 1", s.Active())
	}
}

func TestInterrupt_FromZero(t *testing.T) {
	s, _ := newScheduler(t)

	_, _ = s.Enqueue(frame(4096))
	_, _ = s.Enqueue(frame(4096))
	s.Interrupt()

	u, _ := s.Enqueue(frame(1024))
	if u.Start != 0 {
		t.Errorf("Start = %v, want 0", u.Start)
	}
}

func TestGeneration_DiscardsStaleDecode(t *testing.T) {
	s, _ := newScheduler(t)

	ticket := s.Begin()
	buf, _ := pcm.DecodeFrame(frame(1024), pcm.OutputSampleRate, 1)

	s.Interrupt()

	if _, err := s.EnqueueDecoded(ticket, buf); !errors.Is(err, ErrStale) {
		t.Fatalf("EnqueueDecoded = %v, want ErrStale", err)
	}
	if s.Active() != 0 {
		t.Error("stale decode must not be scheduled")
	}

	if _, err := s.EnqueueDecoded(s.Begin(), buf); err != nil {
		t.Fatalf("fresh ticket: %v", err)
	}
	if st := s.Stats(); st.Dropped != 1 || st.Scheduled != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestEnqueue_BadFrameDropped(t *testing.T) {
	s, _ := newScheduler(t)

	if _, err := s.Enqueue(pcm.WireFrame{Data: "not base64!"}); !errors.Is(err, pcm.ErrInvalidFrame) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Enqueue(frame(100)); err != nil {
		t.Fatalf("scheduler must keep working after a bad frame: %v", err)
	}
}

func TestEnqueue_OutputError(t *testing.T) {
	s, out := newScheduler(t)
	out.StartErr = errors.New("boom")

	if _, err := s.Enqueue(frame(100)); err == nil {
		t.Fatal("expected error")
	}
	if s.Cursor() != 0 || s.Speaking() {
		t.Error("failed start must not advance cursor or mark speaking")
	}
}

func TestTeardown(t *testing.T) {
	s, out := newScheduler(t)

	_, _ = s.Enqueue(frame(2048))
	if err := s.Teardown(); err != nil {
		t.Fatal(err)
	}
	if err := s.Teardown(); err != nil {
		t.Fatalf("second Teardown: %v", err)
	}
	if !out.Closed() || s.Active() != 0 || s.Cursor() != 0 {
		t.Errorf("closed=%v active=%d cursor=%v", out.Closed(), s.Active(), s.Cursor())
	}
	if _, err := s.Enqueue(frame(10)); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Teardown = %v", err)
	}
}

func TestSinkOutput(t *testing.T) {
	sink := audioio.NewMockSink(audioio.DefaultOutputConfig(), nil)
	out, err := NewSinkOutput(context.Background(), sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := New(out, DefaultConfig(), nil)

	done := make(chan struct{})
	s.OnSpeakingChange(func(v bool) {
		if !v {
			close(done)
		}
	})

	if _, err := s.Enqueue(frame(240)); err != nil { // 10ms
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unit never ended")
	}
	if sink.Stats().ChunksWritten != 1 {
		t.Errorf("ChunksWritten = %d", sink.Stats().ChunksWritten)
	}

	_ = s.Teardown()
	if sink.Stats().Running {
		t.Error("sink should be closed after teardown")
	}
}
