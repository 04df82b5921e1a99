package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Input describes one capture source.
type Input struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Input    Input
	Warning  string
	Fallback bool
}

// SelectInput lists platform inputs and applies the selection policy. The
// tone input resolves without touching hardware.
func SelectInput(ctx context.Context, input, fallback string) (Selection, error) {
	if strings.EqualFold(strings.TrimSpace(input), ToneInput) {
		return Selection{Input: Input{ID: ToneInput, Description: "synthetic 440 Hz tone", Available: true}}, nil
	}
	inputs, err := ListInputs(ctx)
	if err != nil {
		return Selection{}, classifyOpenError(err)
	}
	return selectInput(inputs, input, fallback)
}

// selectInput resolves audio.input/audio.fallback preferences against a listing.
func selectInput(inputs []Input, input string, fallback string) (Selection, error) {
	if len(inputs) == 0 {
		return Selection{}, fmt.Errorf("%w: no audio input devices found", ErrDeviceUnavailable)
	}

	var (
		defaultInput *Input
		byInput      *Input
		byFallback   *Input
	)

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	for i := range inputs {
		in := &inputs[i]
		if in.Default {
			defaultInput = in
		}
		if byInput == nil && isNamed(input) && inputMatches(*in, input) {
			byInput = in
		}
		if byFallback == nil && isNamed(fallback) && inputMatches(*in, fallback) {
			byFallback = in
		}
	}

	chooseDefault := func() (*Input, error) {
		if defaultInput == nil {
			return nil, errors.New("default audio source is unavailable")
		}
		return defaultInput, nil
	}

	primary := byInput
	if !isNamed(input) {
		d, err := chooseDefault()
		if err != nil {
			return Selection{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		primary = d
	} else if primary == nil {
		return Selection{}, fmt.Errorf("%w: audio.input %q did not match any device", ErrDeviceUnavailable, input)
	}

	if primary.Available && !primary.Muted {
		return Selection{Input: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	var next *Input
	if isNamed(fallback) {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("%w: primary input %q is %s and fallback %q not found", ErrDeviceUnavailable, primary.ID, reason, fallback)
		}
		next = byFallback
	} else {
		d, err := chooseDefault()
		if err != nil {
			return Selection{}, fmt.Errorf("%w: primary input %q is %s and no usable fallback: %v", ErrDeviceUnavailable, primary.ID, reason, err)
		}
		next = d
	}

	if !next.Available {
		return Selection{}, fmt.Errorf("%w: audio fallback device %q is not available", ErrDeviceUnavailable, next.ID)
	}
	if next.Muted {
		return Selection{}, fmt.Errorf("%w: audio fallback device %q is muted", ErrDeviceUnavailable, next.ID)
	}

	return Selection{
		Input:    *next,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, next.ID),
		Fallback: primary.ID != next.ID,
	}, nil
}

func isNamed(term string) bool {
	return term != "" && term != "default"
}

// inputMatches reports whether a search term matches an input id or description.
func inputMatches(in Input, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(in.ID)
	desc := strings.ToLower(in.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}
