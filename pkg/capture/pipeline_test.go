package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/pcm"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []pcm.WireFrame
}

func (r *frameRecorder) sink(f pcm.WireFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *frameRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *frameRecorder) get(i int) pcm.WireFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[i]
}

func openSource(t *testing.T) *audioio.MockSource {
	t.Helper()
	src := audioio.NewMockSource(audioio.DefaultInputConfig(), nil)
	if err := src.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return src
}

func decode(t *testing.T, f pcm.WireFrame) []float32 {
	t.Helper()
	buf, err := pcm.DecodeFrame(f, pcm.InputSampleRate, 1)
	if err != nil {
		t.Fatal(err)
	}
	return buf.Data[0]
}

func TestNew_Topology(t *testing.T) {
	tests := []struct {
		name       string
		compressor bool
		want       []string
	}{
		{"compressor disabled", false, []string{"gain"}},
		{"compressor enabled", true, []string{"gain", "compressor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(WithCompressor(tt.compressor))
			if err != nil {
				t.Fatal(err)
			}
			got := p.Stages()
			if len(got) != len(tt.want) {
				t.Fatalf("Stages = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Stages = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(WithFrameSize(0)); err == nil {
		t.Error("expected error for zero frame size")
	}
	if _, err := New(WithGain(-1)); err == nil {
		t.Error("expected error for negative gain")
	}
}

func TestPipeline_EmitsFixedFrames(t *testing.T) {
	p, _ := New(WithFrameSize(2048))
	rec := &frameRecorder{}
	src := openSource(t)
	if err := p.Connect(context.Background(), src, rec.sink); err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	// 3 callbacks of 1000 samples yield one frame with 952 pending.
	for i := 0; i < 3; i++ {
		p.Process(make([]float32, 1000))
	}
	if rec.len() != 1 {
		t.Fatalf("frames = %d, want 1", rec.len())
	}
	f := rec.get(0)
	if f.MimeType != pcm.InputMimeType || f.SampleRate != 16000 {
		t.Errorf("frame tags = %q/%d", f.MimeType, f.SampleRate)
	}
	if n := len(decode(t, f)); n != 2048 {
		t.Errorf("frame length = %d, want 2048", n)
	}
	if p.chunker.Pending() != 952 {
		t.Errorf("pending = %d, want 952", p.chunker.Pending())
	}
}

func TestPipeline_PreservesOrder(t *testing.T) {
	p, _ := New(WithFrameSize(4))
	rec := &frameRecorder{}
	_ = p.Connect(context.Background(), openSource(t), rec.sink)
	defer p.Close()

	p.Process([]float32{0.1, 0.1, 0.1, 0.1, 0.2, 0.2})
	p.Process([]float32{0.2, 0.2, 0.3, 0.3, 0.3, 0.3})

	if rec.len() != 3 {
		t.Fatalf("frames = %d, want 3", rec.len())
	}
	for i, want := range []float32{0.1, 0.2, 0.3} {
		got := decode(t, rec.get(i))
		if math.Abs(float64(got[0]-want)) > 1e-4 {
			t.Errorf("frame %d starts with %v, want %v", i, got[0], want)
		}
	}
}

func TestPipeline_LiveGain(t *testing.T) {
	p, _ := New(WithFrameSize(2))
	rec := &frameRecorder{}
	_ = p.Connect(context.Background(), openSource(t), rec.sink)
	defer p.Close()

	p.Process([]float32{0.25, 0.25})
	p.SetGain(2)
	p.Process([]float32{0.25, 0.25})

	if got := decode(t, rec.get(0))[0]; got != 0.25 {
		t.Errorf("unity frame = %v", got)
	}
	if got := decode(t, rec.get(1))[0]; got != 0.5 {
		t.Errorf("gain 2 frame = %v", got)
	}
	if p.Gain() != 2 {
		t.Errorf("Gain = %v", p.Gain())
	}
}

func TestPipeline_StreamFromSource(t *testing.T) {
	p, _ := New(WithFrameSize(8))
	rec := &frameRecorder{}
	src := openSource(t)
	if err := p.Connect(context.Background(), src, rec.sink); err != nil {
		t.Fatal(err)
	}

	src.Push(make([]float32, 8))
	src.Push(make([]float32, 8))

	deadline := time.Now().Add(time.Second)
	for rec.len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.len() != 2 {
		t.Fatalf("frames = %d, want 2", rec.len())
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if src.Live() {
		t.Error("Close must stop the source")
	}
}

func TestPipeline_SingleUse(t *testing.T) {
	p, _ := New()
	src := openSource(t)
	rec := &frameRecorder{}

	if err := p.Connect(context.Background(), src, rec.sink); err != nil {
		t.Fatal(err)
	}
	if err := p.Connect(context.Background(), src, rec.sink); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v", err)
	}

	_ = p.Close()
	_ = p.Close()

	if err := p.Connect(context.Background(), openSource(t), rec.sink); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}

	p.Process(make([]float32, 4096))
	if rec.len() != 0 {
		t.Error("closed pipeline must not emit frames")
	}
}

func TestPipeline_RequiresLiveSource(t *testing.T) {
	p, _ := New()
	src := audioio.NewMockSource(audioio.DefaultInputConfig(), nil)

	if err := p.Connect(context.Background(), src, func(pcm.WireFrame) {}); !errors.Is(err, ErrSourceNotLive) {
		t.Errorf("Connect = %v, want ErrSourceNotLive", err)
	}
}

func TestCompressor_ReducesLoudSignal(t *testing.T) {
	c := NewCompressor(VoiceProfile(), 16000)

	loud := make([]float32, 1600)
	for i := range loud {
		loud[i] = 0.8
	}
	c.Process(loud)

	// Well above threshold the steady-state output is far below the input.
	if loud[len(loud)-1] >= 0.1 {
		t.Errorf("compressed level = %v, want < 0.1", loud[len(loud)-1])
	}

	quiet := NewCompressor(VoiceProfile(), 16000)
	s := []float32{0.0001, 0.0001}
	quiet.Process(s)
	if s[1] != 0.0001 {
		t.Errorf("below knee should pass through, got %v", s[1])
	}
}

func TestCompressor_Reduction(t *testing.T) {
	c := NewCompressor(VoiceProfile(), 16000)

	tests := []struct {
		level float64
		want  float64
	}{
		{-100, 0},
		{-70, 0},
		{-10, (1.0/12 - 1) * 40},
	}
	for _, tt := range tests {
		if got := c.reduction(tt.level); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("reduction(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}

	// Continuous at the knee edges.
	lo, hi := c.reduction(-70.0001), c.reduction(-69.9999)
	if math.Abs(lo-hi) > 1e-3 {
		t.Errorf("discontinuity at lower knee: %v vs %v", lo, hi)
	}
}

func TestChunker(t *testing.T) {
	c := NewChunker(3)
	var got [][]float32
	emit := func(f []float32) { got = append(got, f) }

	c.Write([]float32{1, 2}, emit)
	c.Write([]float32{3, 4, 5, 6, 7}, emit)

	if len(got) != 2 || got[0][2] != 3 || got[1][0] != 4 {
		t.Fatalf("frames = %v", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d", c.Pending())
	}

	// Emitted frames must not alias the internal buffer.
	got[0][0] = 99
	c.Write([]float32{8, 9}, emit)
	if got[2][0] != 7 {
		t.Errorf("third frame = %v", got[2])
	}
}
