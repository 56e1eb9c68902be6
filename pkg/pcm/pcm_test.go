package pcm

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestEncodeFrame_Tags(t *testing.T) {
	w := EncodeFrame([]float32{0, 0.5, -0.5})

	if w.MimeType != "audio/pcm;rate=16000" {
		t.Errorf("MimeType = %q", w.MimeType)
	}
	if w.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", w.SampleRate)
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"min", -1, -32768},
		{"max saturates", 1, 32767},
		{"truncates toward zero", 0.00005, 1},
		{"negative truncates toward zero", -0.00005, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := int16(binary.LittleEndian.Uint16(Quantize([]float32{tt.in})))
			if got != tt.want {
				t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	step := 1.0 / 32768.0

	for _, n := range []int{0, 1, 2, 127, 2048, 4099} {
		x := make([]float32, n)
		for i := range x {
			x[i] = rng.Float32()*2 - 1
		}
		if n > 2 {
			x[0], x[1] = -1, 1
		}

		buf, err := DecodeFrame(EncodeFrame(x), InputSampleRate, 1)
		if err != nil {
			t.Fatalf("n=%d: DecodeFrame: %v", n, err)
		}
		if buf.Len() != n {
			t.Fatalf("n=%d: Len = %d", n, buf.Len())
		}
		for i, v := range x {
			if d := math.Abs(float64(buf.Data[0][i] - v)); d > step+1e-9 {
				t.Fatalf("n=%d: sample %d differs by %g", n, i, d)
			}
		}
	}
}

func TestDecodeFrame_Deinterleave(t *testing.T) {
	// L R L R
	raw := Quantize([]float32{0.25, -0.25, 0.5, -0.5})

	buf, err := DecodeBytes(raw, OutputSampleRate, 2)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if buf.Channels() != 2 || buf.Len() != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", buf.Channels(), buf.Len())
	}
	if buf.Data[0][1] != 0.5 || buf.Data[1][1] != -0.5 {
		t.Errorf("second frame = (%v, %v)", buf.Data[0][1], buf.Data[1][1])
	}

	inter := buf.Interleaved()
	if inter[2] != 0.5 || inter[3] != -0.5 {
		t.Errorf("Interleaved = %v", inter)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name     string
		frame    WireFrame
		channels int
		want     error
	}{
		{"bad base64", WireFrame{Data: "***"}, 1, ErrInvalidFrame},
		{"odd bytes", WireFrame{Data: "AA=="}, 1, ErrTruncatedFrame},
		{"partial stereo frame", EncodeFrame([]float32{0.1, 0.2, 0.3}), 2, ErrTruncatedFrame},
		{"zero channels", EncodeFrame([]float32{0.1}), 0, ErrInvalidFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.frame, OutputSampleRate, tt.channels)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuffer_Duration(t *testing.T) {
	// 4096 bytes of mono PCM16 at 24 kHz is 2048 samples.
	buf, err := DecodeBytes(make([]byte, 4096), OutputSampleRate, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := 2048 * time.Second / 24000
	if buf.Duration() != want {
		t.Errorf("Duration = %v, want %v", buf.Duration(), want)
	}
	if (Buffer{}).Duration() != 0 {
		t.Error("empty buffer should have zero duration")
	}
}
