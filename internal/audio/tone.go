package audio

import (
	"math"
	"sync"
	"time"
)

// ToneInput selects the synthetic source instead of a hardware device.
const ToneInput = "tone"

// ToneSource paces a quiet sine wave at the hardware frame cadence. It stands
// in for a microphone on machines without one.
type ToneSource struct {
	onSamples func([]int16)
	hz        float64

	mu    sync.Mutex
	phase float64
	stop  chan struct{}
	done  chan struct{}
}

func NewToneSource(hz float64, onSamples func([]int16)) *ToneSource {
	return &ToneSource{onSamples: onSamples, hz: hz}
}

func (t *ToneSource) Name() string { return ToneInput }

func (t *ToneSource) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return nil
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done)
	return nil
}

func (t *ToneSource) Stop() error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (t *ToneSource) Close() error {
	return t.Stop()
}

func (t *ToneSource) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := time.Duration(FrameSamples) * time.Second / SampleRate
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.onSamples(t.next())
		}
	}
}

func (t *ToneSource) next() []int16 {
	out := make([]int16, FrameSamples)
	step := 2 * math.Pi * t.hz / SampleRate
	for i := range out {
		out[i] = int16(2000 * math.Sin(t.phase))
		t.phase += step
	}
	t.phase = math.Mod(t.phase, 2*math.Pi)
	return out
}
