// Package audio captures microphone PCM into recording files and frame sinks.
package audio

import (
	"encoding/binary"
	"time"

	"github.com/rbright/dictum/internal/recording"
)

const (
	SampleRate = recording.SampleRate
	Channels   = recording.Channels
	// FrameSamples is the requested hardware buffer size per callback.
	FrameSamples = 1024
)

// Frame is one capture callback worth of mono 16-bit samples.
type Frame struct {
	Samples    []int16
	Sequence   uint64
	CapturedAt time.Time
}

// Duration reports the audio length of the frame.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / SampleRate
}

// PCM encodes the samples as little-endian s16 bytes.
func (f Frame) PCM() []byte {
	out := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FrameSink receives every produced frame. Implementations must not block.
type FrameSink interface {
	Submit(Frame)
}

// SinkFunc adapts a function to FrameSink.
type SinkFunc func(Frame)

func (f SinkFunc) Submit(frame Frame) {
	f(frame)
}

// DecodePCM converts little-endian s16 bytes into samples. A trailing odd byte
// is ignored.
func DecodePCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
