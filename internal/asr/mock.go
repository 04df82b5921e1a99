package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/dictum/internal/audio"
)

// Mock is an offline engine that reports how much audio it has heard. Each
// utterance lasts UtteranceFrames frames, with a partial every PartialEvery.
// Utterance numbers continue across the streams of one Mock.
type Mock struct {
	PartialEvery    int
	UtteranceFrames int
	QueueFrames     int
	Logger          *slog.Logger

	mu         sync.Mutex
	utterances int
}

// nextUtterance reserves the next utterance number.
func (m *Mock) nextUtterance() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utterances++
	return m.utterances
}

// NewMock returns a Mock tuned for roughly one partial per second and one
// final every five seconds at the capture cadence.
func NewMock(logger *slog.Logger) *Mock {
	return &Mock{PartialEvery: 16, UtteranceFrames: 80, Logger: logger}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Begin(_ context.Context, l Listener) (Stream, error) {
	partialEvery, utterance := m.PartialEvery, m.UtteranceFrames
	if partialEvery <= 0 {
		partialEvery = 1
	}
	if utterance < partialEvery {
		utterance = partialEvery
	}
	t := &mockTransport{
		engine:       m,
		partialEvery: partialEvery,
		utterance:    utterance,
		updates:      make(chan Update, 16),
		closed:       make(chan struct{}),
	}
	return NewStream(t, l, StreamOptions{QueueFrames: m.QueueFrames, Logger: m.Logger}), nil
}

type mockTransport struct {
	engine       *Mock
	partialEvery int
	utterance    int

	mu      sync.Mutex
	frames  int
	heard   time.Duration
	// current is the number of the open utterance, 0 before its first update.
	current int
	updates chan Update
	closed  chan struct{}
	once    sync.Once
}

func (t *mockTransport) Send(frame audio.Frame) error {
	t.mu.Lock()
	t.frames++
	t.heard += frame.Duration()
	frames, heard := t.frames, t.heard
	final := frames%t.utterance == 0
	var u *Update
	if final || frames%t.partialEvery == 0 {
		if t.current == 0 {
			t.current = t.engine.nextUtterance()
		}
		u = &Update{Text: fmt.Sprintf("utterance %d (%.1fs)", t.current, heard.Seconds())}
		if final {
			u.Text += "."
			u.IsFinal = true
			t.current = 0
			t.heard = 0
		}
	}
	t.mu.Unlock()

	if u == nil {
		return nil
	}
	select {
	case t.updates <- *u:
		return nil
	case <-t.closed:
		return errors.New("mock stream closed")
	}
}

func (t *mockTransport) Recv() ([]Update, error) {
	select {
	case u := <-t.updates:
		return []Update{u}, nil
	case <-t.closed:
		return nil, errors.New("mock stream closed")
	}
}

func (t *mockTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}
