// Package pcm converts between float audio samples and the 16-bit
// little-endian, base64-wrapped frames exchanged with the speech model.
//
// All functions are pure. Encoding is lossy (16-bit quantization) but
// preserves sample count.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// InputSampleRate is the rate of microphone frames sent to the model.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of audio replies from the model.
	OutputSampleRate = 24000

	// InputMimeType tags outbound frames as raw 16 kHz PCM.
	InputMimeType = "audio/pcm;rate=16000"

	// scale maps [-1, 1] floats onto the int16 range.
	scale = 32768
)

var (
	// ErrInvalidFrame is returned for frames that are not valid base64 PCM16.
	ErrInvalidFrame = errors.New("pcm: invalid frame")

	// ErrTruncatedFrame is returned when the payload does not hold a whole
	// number of samples for every channel.
	ErrTruncatedFrame = errors.New("pcm: truncated frame")
)

// WireFrame is a base64-encoded, rate-tagged PCM16 payload.
type WireFrame struct {
	Data       string `json:"data"`
	MimeType   string `json:"mimeType"`
	SampleRate int    `json:"-"`
}

// Buffer is a decoded, ready-to-play block of audio. Data holds one slice
// per channel, all of equal length.
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// Channels returns the channel count.
func (b Buffer) Channels() int { return len(b.Data) }

// Len returns the number of sample frames per channel.
func (b Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// Interleaved returns the samples in frame-major order.
func (b Buffer) Interleaved() []float32 {
	channels := b.Channels()
	out := make([]float32, b.Len()*channels)
	for c, ch := range b.Data {
		for i, s := range ch {
			out[i*channels+c] = s
		}
	}
	return out
}

// EncodeFrame quantizes samples to PCM16 and wraps them as a 16 kHz frame.
func EncodeFrame(samples []float32) WireFrame {
	return WireFrame{
		Data:       base64.StdEncoding.EncodeToString(Quantize(samples)),
		MimeType:   InputMimeType,
		SampleRate: InputSampleRate,
	}
}

// Quantize converts samples to little-endian PCM16 bytes. Each sample is
// multiplied by 32768 and truncated toward zero. Inputs are expected to be
// within [-1, 1]; only the int16 boundary is saturated, so +1.0 maps to 32767.
func Quantize(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * scale)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodeFrame turns a wire frame into a Buffer at sampleRate with the given
// channel count. Sample i of channel c is read from index i*channels+c.
func DecodeFrame(w WireFrame, sampleRate, channels int) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return DecodeBytes(raw, sampleRate, channels)
}

// DecodeBytes is DecodeFrame for an already base64-decoded payload.
func DecodeBytes(raw []byte, sampleRate, channels int) (Buffer, error) {
	if channels <= 0 {
		return Buffer{}, fmt.Errorf("%w: channel count %d", ErrInvalidFrame, channels)
	}
	if len(raw)%(2*channels) != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes for %d channels", ErrTruncatedFrame, len(raw), channels)
	}

	frames := len(raw) / (2 * channels)
	buf := Buffer{SampleRate: sampleRate, Data: make([][]float32, channels)}
	for c := range buf.Data {
		buf.Data[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(raw[off:]))
			buf.Data[c][i] = float32(s) / scale
		}
	}
	return buf, nil
}
