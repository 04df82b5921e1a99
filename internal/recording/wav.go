package recording

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

type wavEncoder struct {
	enc *wav.Encoder
	buf *audio.IntBuffer
}

func newWAVEncoder(w io.WriteSeeker) *wavEncoder {
	return &wavEncoder{
		enc: wav.NewEncoder(w, SampleRate, BitsPerSample, Channels, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
			SourceBitDepth: BitsPerSample,
		},
	}
}

func (e *wavEncoder) write(samples []int16) error {
	data := e.buf.Data[:0]
	for _, s := range samples {
		data = append(data, int(s))
	}
	e.buf.Data = data
	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return nil
}

func (e *wavEncoder) close() error {
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
