package recording

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// BlockSize is the fixed FLAC frame length in samples.
const BlockSize = 4096

type flacEncoder struct {
	enc     *flac.Encoder
	pending []int32
}

func newFLACEncoder(w io.WriteSeeker) (*flacEncoder, error) {
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return nil, fmt.Errorf("create flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	return &flacEncoder{enc: enc, pending: make([]int32, 0, BlockSize)}, nil
}

func (e *flacEncoder) write(samples []int16) error {
	for _, s := range samples {
		e.pending = append(e.pending, int32(s))
		if len(e.pending) == BlockSize {
			if err := e.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *flacEncoder) flush() error {
	if len(e.pending) == 0 {
		return nil
	}
	block := make([]int32, len(e.pending))
	copy(block, e.pending)
	e.pending = e.pending[:0]

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   block,
			NSamples:  len(block),
		}},
	}
	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("write flac frame: %w", err)
	}
	return nil
}

func (e *flacEncoder) close() error {
	flushErr := e.flush()
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("close flac encoder: %w", err)
	}
	return flushErr
}
