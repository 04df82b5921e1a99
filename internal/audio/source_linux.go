//go:build linux

package audio

import "context"

// ListInputs enumerates capture devices on the platform backend.
func ListInputs(ctx context.Context) ([]Input, error) {
	return ListPulseInputs(ctx)
}

func openPlatform(ctx context.Context, input, fallback string, onSamples func([]int16)) (Source, Selection, error) {
	src, selection, err := OpenPulse(ctx, input, fallback, onSamples)
	if err != nil {
		return nil, Selection{}, err
	}
	return src, selection, nil
}
