package asr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbright/dictum/internal/audio"
	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	mu      sync.Mutex
	sent    []audio.Frame
	sendErr error
	block   chan struct{}

	updates chan []Update
	recvErr chan error
	closed  chan struct{}
	once    sync.Once
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		updates: make(chan []Update, 8),
		recvErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (t *scriptedTransport) Send(frame audio.Frame) error {
	if t.block != nil {
		select {
		case <-t.block:
		case <-t.closed:
			return errors.New("closed")
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, frame)
	return nil
}

func (t *scriptedTransport) Recv() ([]Update, error) {
	select {
	case u := <-t.updates:
		return u, nil
	case err := <-t.recvErr:
		return nil, err
	case <-t.closed:
		return nil, errors.New("closed")
	}
}

func (t *scriptedTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *scriptedTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type recordingListener struct {
	mu      sync.Mutex
	updates []Update
	errs    []error
	signal  chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{signal: make(chan struct{}, 16)}
}

func (l *recordingListener) Update(u Update) {
	l.mu.Lock()
	l.updates = append(l.updates, u)
	l.mu.Unlock()
	l.signal <- struct{}{}
}

func (l *recordingListener) Fail(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
	l.signal <- struct{}{}
}

func (l *recordingListener) wait(t *testing.T) {
	t.Helper()
	select {
	case <-l.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not called")
	}
}

func (l *recordingListener) snapshot() ([]Update, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Update(nil), l.updates...), append([]error(nil), l.errs...)
}

func TestTransportStreamForwardsFramesAndUpdates(t *testing.T) {
	transport := newScriptedTransport()
	listener := newRecordingListener()
	stream := NewStream(transport, listener, StreamOptions{})
	defer stream.Cancel()

	stream.Submit(audio.Frame{Sequence: 1})
	stream.Submit(audio.Frame{Sequence: 2})
	require.Eventually(t, func() bool { return transport.sentCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	transport.updates <- []Update{{Text: "hel"}, {Text: "hello", IsFinal: true}}
	listener.wait(t)
	listener.wait(t)

	updates, errs := listener.snapshot()
	require.Equal(t, []Update{{Text: "hel"}, {Text: "hello", IsFinal: true}}, updates)
	require.Empty(t, errs)
}

func TestTransportStreamSubmitNeverBlocks(t *testing.T) {
	transport := newScriptedTransport()
	transport.block = make(chan struct{})
	stream := NewStream(transport, newRecordingListener(), StreamOptions{QueueFrames: 2})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			stream.Submit(audio.Frame{Sequence: uint64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a stalled transport")
	}
	require.GreaterOrEqual(t, stream.Dropped(), uint64(17))

	stream.Cancel()
}

func TestTransportStreamCancelIsSynchronousAndIdempotent(t *testing.T) {
	transport := newScriptedTransport()
	listener := newRecordingListener()
	stream := NewStream(transport, listener, StreamOptions{})

	stream.Cancel()
	stream.Cancel()

	transport.updates <- []Update{{Text: "late"}}
	stream.Submit(audio.Frame{})

	time.Sleep(20 * time.Millisecond)
	updates, errs := listener.snapshot()
	require.Empty(t, updates)
	require.Empty(t, errs, "failures after cancel are not reported")
	require.Equal(t, 0, transport.sentCount())
	require.Equal(t, uint64(1), stream.Dropped())
}

func TestTransportStreamReceiveFailureReportsUnavailableOnce(t *testing.T) {
	transport := newScriptedTransport()
	listener := newRecordingListener()
	stream := NewStream(transport, listener, StreamOptions{})

	transport.recvErr <- errors.New("backend went away")
	listener.wait(t)

	_, errs := listener.snapshot()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrEngineUnavailable)
	require.Contains(t, errs[0].Error(), "backend went away")

	stream.Submit(audio.Frame{})
	require.Equal(t, uint64(1), stream.Dropped())

	stream.Cancel()
	_, errs = listener.snapshot()
	require.Len(t, errs, 1)
}

func TestTransportStreamSendFailureReportsUnavailable(t *testing.T) {
	transport := newScriptedTransport()
	transport.sendErr = errors.New("broken pipe")
	listener := newRecordingListener()
	stream := NewStream(transport, listener, StreamOptions{})
	defer stream.Cancel()

	stream.Submit(audio.Frame{})
	listener.wait(t)

	_, errs := listener.snapshot()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrEngineUnavailable)
	require.Contains(t, errs[0].Error(), "send audio")
}

func TestUnavailableWrapsOnce(t *testing.T) {
	require.NoError(t, Unavailable(nil))
	err := Unavailable(errors.New("dial"))
	require.ErrorIs(t, err, ErrEngineUnavailable)
	require.Same(t, err, Unavailable(err))
}

func TestMockEmitsPartialsAndFinals(t *testing.T) {
	listener := newRecordingListener()
	engine := &Mock{PartialEvery: 2, UtteranceFrames: 4}
	stream, err := engine.Begin(context.Background(), listener)
	require.NoError(t, err)
	defer stream.Cancel()

	frame := audio.Frame{Samples: make([]int16, 1600)}
	for i := 0; i < 4; i++ {
		stream.Submit(frame)
	}
	listener.wait(t)
	listener.wait(t)

	updates, _ := listener.snapshot()
	require.Equal(t, Update{Text: "utterance 1 (0.2s)"}, updates[0])
	require.Equal(t, Update{Text: "utterance 1 (0.4s).", IsFinal: true}, updates[1])
	require.Equal(t, "mock", engine.Name())
}

func TestMockNumbersUtterancesAcrossStreams(t *testing.T) {
	engine := &Mock{PartialEvery: 2, UtteranceFrames: 4}
	frame := audio.Frame{Samples: make([]int16, 1600)}

	first := newRecordingListener()
	stream, err := engine.Begin(context.Background(), first)
	require.NoError(t, err)
	stream.Submit(frame)
	stream.Submit(frame)
	first.wait(t)
	stream.Cancel()

	second := newRecordingListener()
	stream, err = engine.Begin(context.Background(), second)
	require.NoError(t, err)
	defer stream.Cancel()
	for i := 0; i < 4; i++ {
		stream.Submit(frame)
	}
	second.wait(t)
	second.wait(t)

	updates, _ := first.snapshot()
	require.Equal(t, Update{Text: "utterance 1 (0.2s)"}, updates[0])
	updates, _ = second.snapshot()
	require.Equal(t, Update{Text: "utterance 2 (0.2s)"}, updates[0])
	require.Equal(t, Update{Text: "utterance 2 (0.4s).", IsFinal: true}, updates[1])
}

func TestListenerFuncsIgnoresNilFields(t *testing.T) {
	ListenerFuncs{}.Update(Update{Text: "x"})
	ListenerFuncs{}.Fail(errors.New("x"))

	var got Update
	ListenerFuncs{OnUpdate: func(u Update) { got = u }}.Update(Update{Text: "y"})
	require.Equal(t, "y", got.Text)
}
