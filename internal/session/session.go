// Package session coordinates one recording session: audio capture, the
// recognition stream and the transcript it accumulates.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/dictum/internal/asr"
	"github.com/rbright/dictum/internal/audio"
	"github.com/rbright/dictum/internal/fsm"
	"github.com/rbright/dictum/internal/recording"
	"github.com/rbright/dictum/internal/telemetry"
	"github.com/rbright/dictum/internal/transcript"
)

// ErrEngineStalled is recorded when the watchdog sees no recognition update
// for too long while recording.
var ErrEngineStalled = fmt.Errorf("%w: no recognition update within watchdog window", asr.ErrEngineUnavailable)

// Device is the capture side of a session. audio.Capture implements it.
type Device interface {
	Open(ctx context.Context, destination string) error
	Start() error
	Pause() error
	Resume() error
	Stop() error
	Discard() error
	SetSink(audio.FrameSink)
	OnError(func(error))
}

// Observer is told about every state change after it happens. It runs on the
// commanding goroutine and must not call back into session commands.
type Observer interface {
	Transitioned(from fsm.State, snap Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(from fsm.State, snap Snapshot)

func (f ObserverFunc) Transitioned(from fsm.State, snap Snapshot) {
	f(from, snap)
}

type noopObserver struct{}

func (noopObserver) Transitioned(fsm.State, Snapshot) {}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	ID    string
	State fsm.State
	// Elapsed counts time spent recording in whole seconds.
	Elapsed time.Duration
	// Transcript joins every non-empty segment.
	Transcript string
	// Segments lists non-empty closed segments followed by the in-progress
	// one.
	Segments  []transcript.Segment
	AudioPath string
	Err       error
}

// ElapsedSeconds returns Elapsed as an integer second count.
func (s Snapshot) ElapsedSeconds() int {
	return int(s.Elapsed / time.Second)
}

type Options struct {
	// ID defaults to a random UUID.
	ID string
	// Destination defaults to a file named after ID in the temp directory.
	Destination string
	// Watchdog fails the session when no update arrives for this long while
	// recording. Zero disables it.
	Watchdog time.Duration
	Clock    func() time.Time
	Logger   *slog.Logger
	Observer Observer
	Metrics  *telemetry.Instruments
}

type streamRef struct {
	stream asr.Stream
}

// Session is a single-use recording session. Methods are safe for concurrent
// use.
type Session struct {
	id          string
	destination string
	device      Device
	engine      asr.Engine
	watchdog    time.Duration
	now         func() time.Time
	logger      *slog.Logger
	observer    Observer
	metrics     *telemetry.Instruments

	// cmdMu serializes commands and failures so backend calls never run
	// under mu.
	cmdMu sync.Mutex

	mu           sync.Mutex
	state        fsm.State
	acc          *transcript.Accumulator
	elapsed      time.Duration
	runningSince time.Time
	lastUpdate   time.Time
	gen          uint64
	audioPath    string
	err          error

	stream atomic.Pointer[streamRef]
	done   chan struct{}
}

func New(device Device, engine asr.Engine, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Destination == "" {
		opts.Destination = DefaultDestination("", opts.ID, recording.FormatFLAC)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.Noop()
	}

	s := &Session{
		id:          opts.ID,
		destination: opts.Destination,
		device:      device,
		engine:      engine,
		watchdog:    opts.Watchdog,
		now:         opts.Clock,
		logger:      opts.Logger.With("session", opts.ID),
		observer:    opts.Observer,
		metrics:     opts.Metrics,
		state:       fsm.StateIdle,
		acc:         transcript.NewAccumulator(),
		done:        make(chan struct{}),
	}
	device.SetSink(audio.SinkFunc(s.forward))
	device.OnError(s.deviceFailed)
	return s
}

// DefaultDestination names a recording file after the session ID. An empty
// dir means the system temp directory.
func DefaultDestination(dir, id string, format recording.Format) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dictum-"+id+"."+string(format))
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session reaches stopped or discarded.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the failure that stopped the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	var segments []transcript.Segment
	for _, seg := range s.acc.Segments() {
		if seg.Text != "" {
			segments = append(segments, seg)
		}
	}
	if current, open := s.acc.Current(); open && current.Text != "" {
		segments = append(segments, current)
	}
	return Snapshot{
		ID:         s.id,
		State:      s.state,
		Elapsed:    s.elapsedLocked().Truncate(time.Second),
		Transcript: s.acc.FullText(),
		Segments:   segments,
		AudioPath:  s.audioPath,
		Err:        s.err,
	}
}

func (s *Session) elapsedLocked() time.Duration {
	total := s.elapsed
	if s.state == fsm.StateRecording {
		if d := s.now().Sub(s.runningSince); d > 0 {
			total += d
		}
	}
	return total
}

// Watch emits a snapshot immediately and then every interval until the
// session ends or ctx is canceled. The final snapshot of an ended session is
// always sent before the channel closes.
func (s *Session) Watch(ctx context.Context, interval time.Duration) <-chan Snapshot {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case out <- s.Snapshot():
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-s.done:
				select {
				case out <- s.Snapshot():
				case <-ctx.Done():
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Start opens the device, begins a recognition stream and starts capture. On
// any error the session stays idle and holds no resources.
func (s *Session) Start(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.check(fsm.EventStart); err != nil {
		return err
	}

	if err := s.device.Open(ctx, s.destination); err != nil {
		s.logger.Error("audio device open failed", "error", err.Error())
		return fmt.Errorf("open audio device: %w", err)
	}

	s.mu.Lock()
	s.acc = transcript.NewAccumulator()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	stream, err := s.engine.Begin(ctx, s.listener(gen))
	if err != nil {
		s.invalidate()
		_ = s.device.Discard()
		s.logger.Error("recognition stream failed to begin", "engine", s.engine.Name(), "error", err.Error())
		return fmt.Errorf("begin recognition: %w", asr.Unavailable(err))
	}
	s.stream.Store(&streamRef{stream: stream})

	if err := s.device.Start(); err != nil {
		s.invalidate()
		s.stream.Store(nil)
		stream.Cancel()
		_ = s.device.Discard()
		s.logger.Error("audio device start failed", "error", err.Error())
		return fmt.Errorf("start audio device: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	s.state = fsm.StateRecording
	s.elapsed = 0
	s.runningSince = now
	s.lastUpdate = now
	s.audioPath = s.destination
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.transitioned(fsm.StateIdle, snap)
	if s.watchdog > 0 {
		go s.watch()
	}
	return nil
}

// Pause halts capture, freezes elapsed time, closes the current segment and
// cancels the recognition stream.
func (s *Session) Pause() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.check(fsm.EventPause); err != nil {
		return err
	}
	if err := s.device.Pause(); err != nil {
		return fmt.Errorf("pause audio device: %w", err)
	}

	s.mu.Lock()
	s.gen++
	s.elapsed = s.elapsedLocked()
	s.acc.CloseSegment()
	s.state = fsm.StatePaused
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.cancelStream()
	s.transitioned(fsm.StateRecording, snap)
	return nil
}

// Resume begins a fresh recognition stream, restarts capture into the same
// file and opens a pause-bounded segment. A stream or device failure stops
// the session.
func (s *Session) Resume(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.check(fsm.EventResume); err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	stream, err := s.engine.Begin(ctx, s.listener(gen))
	if err != nil {
		err = fmt.Errorf("begin recognition: %w", asr.Unavailable(err))
		s.failLocked(0, err, "engine")
		return err
	}
	s.stream.Store(&streamRef{stream: stream})

	if err := s.device.Resume(); err != nil {
		err = fmt.Errorf("resume audio device: %w", err)
		s.failLocked(0, err, "device")
		return err
	}

	now := s.now()
	s.mu.Lock()
	s.acc.OpenSegment()
	s.state = fsm.StateRecording
	s.runningSince = now
	s.lastUpdate = now
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.transitioned(fsm.StatePaused, snap)
	return nil
}

// Stop finalizes the recording and keeps the transcript.
func (s *Session) Stop() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.check(fsm.EventStop); err != nil {
		return err
	}
	return s.finish(fsm.EventStop, nil)
}

// Discard deletes the recording and clears the transcript.
func (s *Session) Discard() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if err := s.check(fsm.EventDiscard); err != nil {
		return err
	}
	return s.finish(fsm.EventDiscard, nil)
}

// finish moves a live session to its terminal state. cmdMu must be held.
func (s *Session) finish(event fsm.Event, cause error) error {
	s.mu.Lock()
	from := s.state
	to, err := fsm.Transition(from, event)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	s.elapsed = s.elapsedLocked()
	s.acc.CloseSegment()
	s.state = to
	if cause != nil {
		s.err = cause
	}
	s.mu.Unlock()

	s.cancelStream()

	var releaseErr error
	if event == fsm.EventDiscard {
		releaseErr = s.device.Discard()
	} else {
		releaseErr = s.device.Stop()
	}

	s.mu.Lock()
	if event == fsm.EventDiscard {
		s.acc.Reset()
		s.audioPath = ""
	}
	if releaseErr != nil && s.err == nil {
		s.err = releaseErr
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.Recorded(context.Background(), snap.Elapsed.Seconds(), string(to))
	s.transitioned(from, snap)
	close(s.done)

	if releaseErr != nil {
		return fmt.Errorf("release audio device: %w", releaseErr)
	}
	return nil
}

// fail stops a live session after an asynchronous failure. A nonzero gen
// ignores failures from streams that have since been replaced.
func (s *Session) fail(gen uint64, err error, cause string) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.failLocked(gen, err, cause)
}

func (s *Session) failLocked(gen uint64, err error, cause string) {
	s.mu.Lock()
	stale := (gen != 0 && gen != s.gen) || !s.state.Live()
	s.mu.Unlock()
	if stale {
		return
	}

	s.logger.Error("session failed", "cause", cause, "error", err.Error())
	s.metrics.Failure(context.Background(), cause)
	if finishErr := s.finish(fsm.EventFail, err); finishErr != nil {
		s.logger.Error("release after failure", "error", finishErr.Error())
	}
}

// check validates event against the current state without side effects.
func (s *Session) check(event fsm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fsm.Transition(s.state, event)
	return err
}

// invalidate makes late updates from the current generation no-ops.
func (s *Session) invalidate() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

func (s *Session) cancelStream() {
	if ref := s.stream.Swap(nil); ref != nil {
		ref.stream.Cancel()
	}
}

func (s *Session) transitioned(from fsm.State, snap Snapshot) {
	s.logger.Info("session transition",
		"from", string(from),
		"to", string(snap.State),
		"elapsed_seconds", snap.ElapsedSeconds(),
	)
	s.metrics.Transition(context.Background(), string(from), string(snap.State))
	s.observer.Transitioned(from, snap)
}

// forward runs on the capture goroutine and must not block.
func (s *Session) forward(frame audio.Frame) {
	ref := s.stream.Load()
	if ref == nil {
		s.metrics.Frames(context.Background(), false)
		return
	}
	ref.stream.Submit(frame)
	s.metrics.Frames(context.Background(), true)
}

// deviceFailed runs on the capture goroutine; releasing the device from
// there would wait on itself.
func (s *Session) deviceFailed(err error) {
	go s.fail(0, err, "device")
}

type listener struct {
	s   *Session
	gen uint64
}

func (s *Session) listener(gen uint64) asr.Listener {
	return listener{s: s, gen: gen}
}

func (l listener) Update(u asr.Update) {
	l.s.apply(l.gen, u)
}

// Fail cannot cancel the stream inline: Cancel waits for this goroutine.
func (l listener) Fail(err error) {
	go l.s.fail(l.gen, asr.Unavailable(err), "engine")
}

func (s *Session) apply(gen uint64, u asr.Update) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.acc.Apply(transcript.Update{Text: u.Text, IsFinal: u.IsFinal})
	s.lastUpdate = s.now()
	s.mu.Unlock()

	s.metrics.Update(context.Background(), u.IsFinal)
}

// watch fails a recording session once updates stop arriving.
func (s *Session) watch() {
	interval := s.watchdog / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		stalled := s.state == fsm.StateRecording && s.now().Sub(s.lastUpdate) >= s.watchdog
		gen := s.gen
		s.mu.Unlock()

		if stalled {
			s.fail(gen, ErrEngineStalled, "watchdog")
		}
	}
}

// IsEngineFailure reports whether err came from the recognition backend.
func IsEngineFailure(err error) bool {
	return errors.Is(err, asr.ErrEngineUnavailable)
}
