package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rbright/dictum/internal/asr"
	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/fsm"
	"github.com/rbright/dictum/internal/recording"
	"github.com/rbright/dictum/internal/transcript"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, opts Options) (*Session, *fakeDevice, *fakeEngine, *fakeClock) {
	t.Helper()
	device := &fakeDevice{}
	engine := &fakeEngine{}
	clock := newFakeClock()
	if opts.Clock == nil {
		opts.Clock = clock.Now
	}
	if opts.Destination == "" {
		opts.Destination = filepath.Join(t.TempDir(), "take.flac")
	}
	return New(device, engine, opts), device, engine, clock
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish, state %s", s.State())
	}
}

func TestPauseResumeSegmentsTranscript(t *testing.T) {
	s, _, engine, _ := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	first := engine.Stream(0)
	first.listener.Update(asr.Update{Text: "hel"})
	first.listener.Update(asr.Update{Text: "hell"})
	require.Equal(t, "hell", s.Snapshot().Transcript)
	first.listener.Update(asr.Update{Text: "hello"})

	require.NoError(t, s.Pause())
	require.True(t, first.Canceled())
	require.Equal(t, "hello", s.Snapshot().Transcript)

	require.NoError(t, s.Resume(context.Background()))
	second := engine.Stream(1)
	second.listener.Update(asr.Update{Text: "world.", IsFinal: true})

	require.NoError(t, s.Stop())
	require.True(t, second.Canceled())

	snap := s.Snapshot()
	require.Equal(t, fsm.StateStopped, snap.State)
	require.Equal(t, "hello\n\nworld.", snap.Transcript)
	require.Equal(t, []transcript.Segment{
		{Text: "hello", Break: transcript.BreakNone},
		{Text: "world.", Break: transcript.BreakPause, Final: true},
	}, snap.Segments)
	require.NoError(t, snap.Err)
}

func TestLateUpdatesFromCanceledStreamAreIgnored(t *testing.T) {
	s, _, engine, _ := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	first := engine.Stream(0)
	first.listener.Update(asr.Update{Text: "kept"})
	require.NoError(t, s.Pause())

	first.listener.Update(asr.Update{Text: "late", IsFinal: true})
	require.Equal(t, "kept", s.Snapshot().Transcript)

	require.NoError(t, s.Resume(context.Background()))
	first.listener.Update(asr.Update{Text: "still late"})
	require.Equal(t, "kept", s.Snapshot().Transcript)
}

func TestStartFailsWhenDeviceOpenFails(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})
	device.openErr = audio.ErrPermissionDenied

	err := s.Start(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	require.Equal(t, fsm.StateIdle, s.State())
	require.Zero(t, engine.Calls())
	require.Equal(t, []string{"open"}, device.Calls())
}

func TestStartFailsWhenEngineBeginFails(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})
	engine.beginErrs = []error{errBoom}

	err := s.Start(context.Background())
	require.ErrorIs(t, err, asr.ErrEngineUnavailable)
	require.Equal(t, fsm.StateIdle, s.State())
	require.Equal(t, []string{"open", "discard"}, device.Calls())
}

func TestStartFailsWhenDeviceStartFails(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})
	device.startErr = audio.ErrDeviceUnavailable

	err := s.Start(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	require.Equal(t, fsm.StateIdle, s.State())
	require.True(t, engine.Stream(0).Canceled())
	require.Equal(t, []string{"open", "start", "discard"}, device.Calls())

	engine.Stream(0).listener.Update(asr.Update{Text: "ghost"})
	require.Empty(t, s.Snapshot().Transcript)
}

func TestInvalidTransitionsHaveNoSideEffects(t *testing.T) {
	s, device, engine, clock := newTestSession(t, Options{})

	require.ErrorIs(t, s.Pause(), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Resume(context.Background()), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Stop(), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Discard(), fsm.ErrInvalidTransition)
	require.Empty(t, device.Calls())
	require.Zero(t, engine.Calls())

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Resume(context.Background()), fsm.ErrInvalidTransition)

	engine.Stream(0).listener.Update(asr.Update{Text: "kept words"})
	clock.Advance(2 * time.Second)

	require.NoError(t, s.Stop())
	calls := device.Calls()
	before := s.Snapshot()
	require.Equal(t, "kept words", before.Transcript)
	require.Equal(t, 2*time.Second, before.Elapsed)

	clock.Advance(time.Minute)
	require.ErrorIs(t, s.Stop(), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Discard(), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Pause(), fsm.ErrInvalidTransition)
	require.ErrorIs(t, s.Resume(context.Background()), fsm.ErrInvalidTransition)
	require.Equal(t, calls, device.Calls())
	require.Equal(t, 1, engine.Calls())
	require.Equal(t, before, s.Snapshot())
}

func TestElapsedCountsOnlyRecordingTime(t *testing.T) {
	s, _, _, clock := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	clock.Advance(3 * time.Second)
	require.Equal(t, 3, s.Snapshot().ElapsedSeconds())

	require.NoError(t, s.Pause())
	clock.Advance(10 * time.Second)
	require.Equal(t, 3*time.Second, s.Snapshot().Elapsed)

	require.NoError(t, s.Resume(context.Background()))
	clock.Advance(2500 * time.Millisecond)
	require.Equal(t, 5*time.Second, s.Snapshot().Elapsed)

	require.NoError(t, s.Stop())
	clock.Advance(time.Minute)
	require.Equal(t, 5*time.Second, s.Snapshot().Elapsed)
}

func TestFramesForwardOnlyWhileRecording(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})
	frame := audio.Frame{Samples: make([]int16, audio.FrameSamples)}

	device.push(frame)
	require.NoError(t, s.Start(context.Background()))
	device.push(frame)
	device.push(frame)
	require.Equal(t, 2, engine.Stream(0).Frames())

	require.NoError(t, s.Pause())
	device.push(frame)
	require.Equal(t, 2, engine.Stream(0).Frames())

	require.NoError(t, s.Resume(context.Background()))
	device.push(frame)
	require.Equal(t, 1, engine.Stream(1).Frames())
}

func TestEngineFailureStopsAndKeepsTranscript(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	stream := engine.Stream(0)
	stream.listener.Update(asr.Update{Text: "partial words"})
	stream.listener.Fail(errBoom)

	waitDone(t, s)
	snap := s.Snapshot()
	require.Equal(t, fsm.StateStopped, snap.State)
	require.ErrorIs(t, snap.Err, asr.ErrEngineUnavailable)
	require.True(t, IsEngineFailure(s.Err()))
	require.Equal(t, "partial words", snap.Transcript)
	require.NotEmpty(t, snap.AudioPath)
	require.True(t, stream.Canceled())
	require.Contains(t, device.Calls(), "stop")
	require.NotContains(t, device.Calls(), "discard")
}

func TestStaleEngineFailureIsIgnored(t *testing.T) {
	s, _, engine, _ := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume(context.Background()))

	engine.Stream(0).listener.Fail(errBoom)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, fsm.StateRecording, s.State())
}

func TestWriteFailureStopsSession(t *testing.T) {
	s, device, _, _ := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	device.failWrite(recording.ErrWriteFailure)

	waitDone(t, s)
	require.Equal(t, fsm.StateStopped, s.State())
	require.ErrorIs(t, s.Err(), recording.ErrWriteFailure)
}

func TestResumeBeginFailureStopsSession(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})
	engine.beginErrs = []error{nil, errBoom}

	require.NoError(t, s.Start(context.Background()))
	engine.Stream(0).listener.Update(asr.Update{Text: "before pause", IsFinal: true})
	require.NoError(t, s.Pause())

	err := s.Resume(context.Background())
	require.ErrorIs(t, err, asr.ErrEngineUnavailable)

	snap := s.Snapshot()
	require.Equal(t, fsm.StateStopped, snap.State)
	require.ErrorIs(t, snap.Err, asr.ErrEngineUnavailable)
	require.Equal(t, "before pause", snap.Transcript)
	require.NotContains(t, device.Calls(), "resume")
	require.Contains(t, device.Calls(), "stop")
}

func TestResumeDeviceFailureCancelsNewStream(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})
	device.resumeErr = audio.ErrDeviceUnavailable

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Pause())

	err := s.Resume(context.Background())
	require.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	require.Equal(t, fsm.StateStopped, s.State())
	require.True(t, engine.Stream(1).Canceled())
}

func TestDiscardClearsTranscript(t *testing.T) {
	s, device, engine, _ := newTestSession(t, Options{})

	require.NoError(t, s.Start(context.Background()))
	engine.Stream(0).listener.Update(asr.Update{Text: "secret", IsFinal: true})
	require.NoError(t, s.Pause())

	require.NoError(t, s.Discard())
	snap := s.Snapshot()
	require.Equal(t, fsm.StateDiscarded, snap.State)
	require.Empty(t, snap.Transcript)
	require.Empty(t, snap.Segments)
	require.Empty(t, snap.AudioPath)
	require.Contains(t, device.Calls(), "discard")
	waitDone(t, s)
}

func TestWatchdogFailsStalledSession(t *testing.T) {
	s, _, _, clock := newTestSession(t, Options{Watchdog: 100 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	clock.Advance(time.Second)

	waitDone(t, s)
	require.ErrorIs(t, s.Err(), ErrEngineStalled)
	require.ErrorIs(t, s.Err(), asr.ErrEngineUnavailable)
	require.Equal(t, fsm.StateStopped, s.State())
}

func TestWatchdogIgnoresPausedSession(t *testing.T) {
	s, _, _, clock := newTestSession(t, Options{Watchdog: 100 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Pause())
	clock.Advance(time.Minute)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, fsm.StatePaused, s.State())
	require.NoError(t, s.Stop())
}

func TestObserverSeesEveryTransition(t *testing.T) {
	observer := &recordingObserver{}
	s, _, _, _ := newTestSession(t, Options{Observer: observer})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume(context.Background()))
	require.NoError(t, s.Stop())

	require.Equal(t, []recordedTransition{
		{from: fsm.StateIdle, to: fsm.StateRecording},
		{from: fsm.StateRecording, to: fsm.StatePaused},
		{from: fsm.StatePaused, to: fsm.StateRecording},
		{from: fsm.StateRecording, to: fsm.StateStopped},
	}, observer.Transitions())
}

func TestWatchEmitsUntilSessionEnds(t *testing.T) {
	s, _, engine, _ := newTestSession(t, Options{})
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snaps := s.Watch(ctx, 10*time.Millisecond)

	first := <-snaps
	require.Equal(t, fsm.StateRecording, first.State)

	engine.Stream(0).listener.Update(asr.Update{Text: "done.", IsFinal: true})
	require.NoError(t, s.Stop())

	var last Snapshot
	for snap := range snaps {
		last = snap
	}
	require.Equal(t, fsm.StateStopped, last.State)
	require.Equal(t, "done.", last.Transcript)
}

func TestDefaultsAssignIDAndDestination(t *testing.T) {
	s := New(&fakeDevice{}, &fakeEngine{}, Options{})
	require.NotEmpty(t, s.ID())
	require.Equal(t, filepath.Join(os.TempDir(), "dictum-"+s.ID()+".flac"), s.destination)
	require.Equal(t, "/rec/dictum-abc.wav", DefaultDestination("/rec", "abc", recording.FormatWAV))
}

type pushSource struct{}

func (pushSource) Name() string { return "push" }
func (pushSource) Start() error { return nil }
func (pushSource) Stop() error  { return nil }
func (pushSource) Close() error { return nil }

func TestCaptureBackedSessionFiles(t *testing.T) {
	dir := t.TempDir()
	var deliver func([]int16)
	open := func(_ context.Context, onSamples func([]int16)) (audio.Source, error) {
		deliver = onSamples
		return pushSource{}, nil
	}

	kept := filepath.Join(dir, "kept.wav")
	s := New(audio.NewCapture(open, recording.FormatWAV), &fakeEngine{}, Options{Destination: kept})
	require.NoError(t, s.Start(context.Background()))
	deliver(make([]int16, audio.FrameSamples))
	require.NoError(t, s.Stop())

	info, err := os.Stat(kept)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(44))
	require.Equal(t, kept, s.Snapshot().AudioPath)

	dropped := filepath.Join(dir, "dropped.wav")
	s = New(audio.NewCapture(open, recording.FormatWAV), &fakeEngine{}, Options{Destination: dropped})
	require.NoError(t, s.Start(context.Background()))
	deliver(make([]int16, audio.FrameSamples))
	require.NoError(t, s.Discard())

	_, err = os.Stat(dropped)
	require.ErrorIs(t, err, os.ErrNotExist)
}
