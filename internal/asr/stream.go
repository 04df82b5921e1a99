package asr

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbright/dictum/internal/audio"
)

// DefaultQueueFrames bounds the submit queue, roughly four seconds of audio.
const DefaultQueueFrames = 64

// Transport is the backend half of a stream: one goroutine sends, another
// receives. Close must unblock both.
type Transport interface {
	Send(audio.Frame) error
	Recv() ([]Update, error)
	Close() error
}

// StreamOptions tunes TransportStream.
type StreamOptions struct {
	QueueFrames int
	Logger      *slog.Logger
}

// TransportStream turns a Transport into a Stream with a bounded,
// drop-when-full submit queue and synchronous cancel.
type TransportStream struct {
	transport Transport
	listener  Listener
	logger    *slog.Logger

	frames chan audio.Frame
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	// deliverMu is held for every Listener call; dead flips under it.
	deliverMu sync.Mutex
	dead      bool
	closed    atomic.Bool

	queued  atomic.Uint64
	dropped atomic.Uint64
}

// NewStream starts the send and receive loops for t.
func NewStream(t Transport, l Listener, opts StreamOptions) *TransportStream {
	if opts.QueueFrames <= 0 {
		opts.QueueFrames = DefaultQueueFrames
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &TransportStream{
		transport: t,
		listener:  l,
		logger:    opts.Logger,
		frames:    make(chan audio.Frame, opts.QueueFrames),
		done:      make(chan struct{}),
	}
	s.wg.Add(2)
	go s.sendLoop()
	go s.recvLoop()
	return s
}

func (s *TransportStream) Submit(frame audio.Frame) {
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.frames <- frame:
		s.queued.Add(1)
	default:
		if s.dropped.Add(1)%50 == 1 {
			s.logger.Warn("recognition queue full; dropping frames", "dropped", s.dropped.Load())
		}
	}
}

// Dropped reports frames rejected because the queue was full or the stream
// was closed.
func (s *TransportStream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *TransportStream) Cancel() {
	s.deliverMu.Lock()
	s.dead = true
	s.closed.Store(true)
	s.deliverMu.Unlock()

	s.shutdown()
	s.wg.Wait()
}

func (s *TransportStream) shutdown() {
	s.once.Do(func() {
		close(s.done)
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("close recognition transport", "error", err.Error())
		}
	})
}

func (s *TransportStream) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.frames:
			if err := s.transport.Send(frame); err != nil {
				s.fail(fmt.Errorf("send audio: %w", err))
				return
			}
		}
	}
}

func (s *TransportStream) recvLoop() {
	defer s.wg.Done()
	for {
		updates, err := s.transport.Recv()
		if err != nil {
			s.fail(fmt.Errorf("receive results: %w", err))
			return
		}
		for _, u := range updates {
			s.deliver(u)
		}
	}
}

func (s *TransportStream) deliver(u Update) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.dead {
		return
	}
	s.listener.Update(u)
}

// fail reports the first failure and implicitly cancels. Failures after
// Cancel are expected (closed transport) and dropped.
func (s *TransportStream) fail(err error) {
	s.deliverMu.Lock()
	if s.dead {
		s.deliverMu.Unlock()
		return
	}
	s.dead = true
	s.closed.Store(true)
	s.logger.Warn("recognition stream failed", "error", err.Error())
	s.listener.Fail(Unavailable(err))
	s.deliverMu.Unlock()

	s.shutdown()
}
