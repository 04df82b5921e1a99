// Package asr defines the streaming recognition contract shared by backends.
package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/dictum/internal/audio"
)

// ErrEngineUnavailable is wrapped by every backend connection or stream failure.
var ErrEngineUnavailable = errors.New("speech recognition engine unavailable")

// Update is one recognition result for the current utterance. Partial updates
// carry the full re-transcription of the utterance so far.
type Update struct {
	Text    string
	IsFinal bool
}

// Listener receives stream events on a backend goroutine. Implementations must
// not call Stream.Cancel synchronously from these methods.
type Listener interface {
	Update(Update)
	Fail(error)
}

// ListenerFuncs adapts a pair of functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnUpdate func(Update)
	OnFail   func(error)
}

func (l ListenerFuncs) Update(u Update) {
	if l.OnUpdate != nil {
		l.OnUpdate(u)
	}
}

func (l ListenerFuncs) Fail(err error) {
	if l.OnFail != nil {
		l.OnFail(err)
	}
}

// Stream is one live recognition stream.
type Stream interface {
	// Submit queues a frame without blocking.
	Submit(audio.Frame)
	// Cancel terminates the stream. No Listener call starts after Cancel
	// returns. It is idempotent.
	Cancel()
}

// Engine opens recognition streams.
type Engine interface {
	Name() string
	Begin(ctx context.Context, l Listener) (Stream, error)
}

// Unavailable wraps err in ErrEngineUnavailable unless it already is one.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrEngineUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}
