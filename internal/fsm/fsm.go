// Package fsm holds the recording session transition table.
package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateDiscarded State = "discarded"
)

const (
	EventStart   Event = "start"
	EventPause   Event = "pause"
	EventResume  Event = "resume"
	EventStop    Event = "stop"
	EventDiscard Event = "discard"
	// EventFail ends a live session after a device or engine failure.
	EventFail Event = "fail"
)

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid transition")

// Terminal reports whether no further events are accepted from s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateDiscarded
}

// Live reports whether s holds open capture resources.
func (s State) Live() bool {
	return s == StateRecording || s == StatePaused
}

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventPause:
			return StatePaused, nil
		case EventStop, EventFail:
			return StateStopped, nil
		case EventDiscard:
			return StateDiscarded, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatePaused:
		switch event {
		case EventResume:
			return StateRecording, nil
		case EventStop, EventFail:
			return StateStopped, nil
		case EventDiscard:
			return StateDiscarded, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopped, StateDiscarded:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, state, event)
}
