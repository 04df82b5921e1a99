package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rbright/dictum/internal/asr"
	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/fsm"
)

type fakeDevice struct {
	openErr   error
	startErr  error
	resumeErr error

	mu      sync.Mutex
	calls   []string
	sink    audio.FrameSink
	onError func(error)
}

func (d *fakeDevice) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) Open(context.Context, string) error {
	d.record("open")
	return d.openErr
}

func (d *fakeDevice) Start() error {
	d.record("start")
	return d.startErr
}

func (d *fakeDevice) Pause() error {
	d.record("pause")
	return nil
}

func (d *fakeDevice) Resume() error {
	d.record("resume")
	return d.resumeErr
}

func (d *fakeDevice) Stop() error {
	d.record("stop")
	return nil
}

func (d *fakeDevice) Discard() error {
	d.record("discard")
	return nil
}

func (d *fakeDevice) SetSink(sink audio.FrameSink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

func (d *fakeDevice) OnError(fn func(error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

func (d *fakeDevice) push(frame audio.Frame) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	sink.Submit(frame)
}

func (d *fakeDevice) failWrite(err error) {
	d.mu.Lock()
	fn := d.onError
	d.mu.Unlock()
	fn(err)
}

type fakeStream struct {
	listener asr.Listener

	mu       sync.Mutex
	frames   int
	canceled bool
}

func (s *fakeStream) Submit(audio.Frame) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func (s *fakeStream) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
}

func (s *fakeStream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *fakeStream) Canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

type fakeEngine struct {
	// beginErrs is consumed one entry per Begin call.
	beginErrs []error

	mu      sync.Mutex
	streams []*fakeStream
	calls   int
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Begin(_ context.Context, l asr.Listener) (asr.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := e.calls
	e.calls++
	if call < len(e.beginErrs) && e.beginErrs[call] != nil {
		return nil, e.beginErrs[call]
	}
	stream := &fakeStream{listener: l}
	e.streams = append(e.streams, stream)
	return stream, nil
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *fakeEngine) Stream(i int) *fakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams[i]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedTransition struct {
	from fsm.State
	to   fsm.State
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []recordedTransition
}

func (o *recordingObserver) Transitioned(from fsm.State, snap Snapshot) {
	o.mu.Lock()
	o.transitions = append(o.transitions, recordedTransition{from: from, to: snap.State})
	o.mu.Unlock()
}

func (o *recordingObserver) Transitions() []recordedTransition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]recordedTransition(nil), o.transitions...)
}

var errBoom = errors.New("boom")
