package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/dictum/internal/recording"
)

var (
	// ErrDeviceUnavailable covers a missing input device or a refused tap.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrPermissionDenied wraps ErrDeviceUnavailable.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrDeviceUnavailable)
)

// Source is the hardware tap behind a Capture. Stop halts sample delivery
// without releasing the device; Close releases it.
type Source interface {
	Name() string
	Start() error
	Stop() error
	Close() error
}

// OpenSource prepares a stopped Source that will deliver samples to onSamples.
type OpenSource func(ctx context.Context, onSamples func([]int16)) (Source, error)

// Opener returns the OpenSource for an audio.input preference. The tone input
// bypasses hardware.
func Opener(input, fallback string, logger *slog.Logger) OpenSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(ctx context.Context, onSamples func([]int16)) (Source, error) {
		if strings.EqualFold(strings.TrimSpace(input), ToneInput) {
			return NewToneSource(440, onSamples), nil
		}
		src, selection, err := openPlatform(ctx, input, fallback, onSamples)
		if err != nil {
			return nil, err
		}
		if selection.Warning != "" {
			logger.Warn("audio input fallback", "warning", selection.Warning)
		}
		logger.Info("audio input selected", "input", selection.Input.ID, "description", selection.Input.Description)
		return src, nil
	}
}

type captureState int

const (
	captureClosed captureState = iota
	captureOpen
	captureRunning
	capturePaused
)

// Capture owns one recording file and one hardware tap for a session. Every
// produced frame is written to the file and pushed to the registered sink.
type Capture struct {
	open   OpenSource
	format recording.Format
	logger *slog.Logger
	now    func() time.Time

	// cmd serializes lifecycle calls; source methods never run under mu
	// because backends may block on their own delivery goroutine.
	cmd sync.Mutex

	mu       sync.Mutex
	state    captureState
	source   Source
	file     *recording.File
	sink     FrameSink
	onError  func(error)
	failed   bool
	sequence uint64

	dropped atomic.Uint64
}

// CaptureOption customizes a Capture.
type CaptureOption func(*Capture)

func WithClock(now func() time.Time) CaptureOption {
	return func(c *Capture) { c.now = now }
}

func WithLogger(logger *slog.Logger) CaptureOption {
	return func(c *Capture) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCapture returns a closed capture device. format is used when the
// destination extension does not name one.
func NewCapture(open OpenSource, format recording.Format, opts ...CaptureOption) *Capture {
	c := &Capture{
		open:   open,
		format: format,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSink registers the single frame consumer. Nil drops frames.
func (c *Capture) SetSink(sink FrameSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// OnError registers the asynchronous write-failure callback. It runs outside
// capture locks.
func (c *Capture) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Dropped reports frames produced while no sink was registered.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// Path returns the current destination, or "" when closed.
func (c *Capture) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return ""
	}
	return c.file.Path()
}

// Open prepares the hardware tap and then creates the destination file.
// Nothing is left behind when either step fails.
func (c *Capture) Open(ctx context.Context, destination string) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != captureClosed {
		return errors.New("capture already open")
	}

	src, err := c.open(ctx, c.onSamples)
	if err != nil {
		return classifyOpenError(err)
	}

	file, err := recording.Create(destination, recording.FormatForPath(destination, c.format))
	if err != nil {
		_ = src.Close()
		return err
	}

	c.mu.Lock()
	c.source = src
	c.file = file
	c.state = captureOpen
	c.failed = false
	c.sequence = 0
	c.mu.Unlock()

	c.logger.Info("capture opened", "source", src.Name(), "path", file.Path())
	return nil
}

// Start begins frame production. Starting a running capture is a no-op.
func (c *Capture) Start() error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	state, src := c.state, c.source
	c.mu.Unlock()

	switch state {
	case captureRunning:
		return nil
	case captureOpen:
	case capturePaused:
		return errors.New("capture is paused; use resume")
	default:
		return errors.New("capture is not open")
	}

	if err := src.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrDeviceUnavailable, src.Name(), err)
	}
	c.setState(captureRunning)
	return nil
}

// Pause stops writing and frame delivery but keeps the tap open. A source
// that fails to stop leaves the capture running.
func (c *Capture) Pause() error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	state, src := c.state, c.source
	c.mu.Unlock()

	switch state {
	case capturePaused:
		return nil
	case captureRunning:
	default:
		return errors.New("capture is not running")
	}
	if err := src.Stop(); err != nil {
		return fmt.Errorf("pause %s: %w", src.Name(), err)
	}
	c.setState(capturePaused)
	return nil
}

// Resume continues writing into the same file.
func (c *Capture) Resume() error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	state, src := c.state, c.source
	c.mu.Unlock()

	switch state {
	case captureRunning:
		return nil
	case capturePaused:
	default:
		return errors.New("capture is not paused")
	}
	if err := src.Start(); err != nil {
		return fmt.Errorf("%w: resume %s: %v", ErrDeviceUnavailable, src.Name(), err)
	}
	c.setState(captureRunning)
	return nil
}

// Stop finalizes the file and releases the tap. Stopping a closed capture is
// a no-op.
func (c *Capture) Stop() error {
	return c.release(false)
}

// Discard stops the capture and deletes the file.
func (c *Capture) Discard() error {
	return c.release(true)
}

func (c *Capture) release(remove bool) error {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	src, file := c.source, c.file
	c.state = captureClosed
	c.source = nil
	c.file = nil
	c.mu.Unlock()

	var errs []error
	if src != nil {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", src.Name(), err))
		}
	}
	if file != nil {
		if remove {
			errs = append(errs, file.Remove())
		} else {
			errs = append(errs, file.Finalize())
		}
		c.logger.Info("capture released", "path", file.Path(), "removed", remove, "duration", file.Duration().String())
	}
	return errors.Join(errs...)
}

func (c *Capture) setState(state captureState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// onSamples runs on the backend delivery goroutine.
func (c *Capture) onSamples(buf []int16) {
	c.mu.Lock()
	if c.state != captureRunning {
		c.mu.Unlock()
		return
	}

	samples := make([]int16, len(buf))
	copy(samples, buf)
	c.sequence++
	frame := Frame{Samples: samples, Sequence: c.sequence, CapturedAt: c.now()}

	var writeErr error
	if !c.failed {
		if err := c.file.Write(samples); err != nil {
			c.failed = true
			writeErr = err
		}
	}
	sink, onError := c.sink, c.onError
	c.mu.Unlock()

	if writeErr != nil {
		c.logger.Error("recording write failed", "error", writeErr.Error())
		if onError != nil {
			onError(writeErr)
		}
	}
	if sink == nil {
		c.dropped.Add(1)
		return
	}
	sink.Submit(frame)
}

// classifyOpenError keeps device errors in the ErrDeviceUnavailable family.
func classifyOpenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDeviceUnavailable):
		return err
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
}
