// Package cue plays short synthesized tones on session transitions.
package cue

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/dictum/internal/fsm"
	"github.com/rbright/dictum/internal/session"
)

type Kind int

const (
	KindStart Kind = iota + 1
	KindPause
	KindResume
	KindStop
	KindDiscard
	KindError
)

const sampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var cueTones = map[Kind][]toneSpec{
	KindStart: {
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	},
	KindPause: {
		{frequencyHz: 660, duration: 60 * time.Millisecond, volume: 0.16},
		{frequencyHz: 660, duration: 60 * time.Millisecond, volume: 0.16},
	},
	KindResume: {
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	},
	KindStop: {
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	},
	KindDiscard: {
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	},
	KindError: {
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
		{frequencyHz: 310, duration: 160 * time.Millisecond, volume: 0.18},
	},
}

// Player plays session cues. It implements session.Observer.
type Player struct {
	enabled bool
	volume  float64
	logger  *slog.Logger
	play    func([]int16) error

	// mu keeps cues from overlapping.
	mu sync.Mutex
	wg sync.WaitGroup
}

// New returns a pulse-backed player. volume scales the built-in tone levels
// and is clamped to [0, 1].
func New(enabled bool, volume float64, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Player{
		enabled: enabled,
		volume:  math.Max(0, math.Min(1, volume)),
		logger:  logger,
		play:    playPulse,
	}
}

// KindFor maps a transition to its cue. The zero Kind means no cue.
func KindFor(from fsm.State, snap session.Snapshot) Kind {
	switch snap.State {
	case fsm.StateRecording:
		if from == fsm.StatePaused {
			return KindResume
		}
		return KindStart
	case fsm.StatePaused:
		return KindPause
	case fsm.StateStopped:
		if snap.Err != nil {
			return KindError
		}
		return KindStop
	case fsm.StateDiscarded:
		return KindDiscard
	default:
		return 0
	}
}

func (p *Player) Transitioned(from fsm.State, snap session.Snapshot) {
	p.Play(KindFor(from, snap))
}

// Play emits kind asynchronously.
func (p *Player) Play(kind Kind) {
	if !p.enabled || p.volume == 0 {
		return
	}
	samples := Samples(kind, p.volume)
	if len(samples) == 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.play(samples); err != nil {
			p.logger.Debug("cue playback failed", "kind", int(kind), "error", err.Error())
		}
	}()
}

// Wait blocks until queued cues finish.
func (p *Player) Wait() {
	p.wg.Wait()
}

// Samples synthesizes the tone sequence for kind.
func Samples(kind Kind, volume float64) []int16 {
	parts, ok := cueTones[kind]
	if !ok {
		return nil
	}
	scaled := make([]toneSpec, len(parts))
	for i, part := range parts {
		part.volume *= volume
		scaled[i] = part
	}
	return synthesizeCue(scaled)
}

func playPulse(samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("dictum"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("dictum cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(22 * time.Millisecond)

	var pcm []int16
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}
	return pcm
}

func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	// 5ms ramps at each edge avoid clicks.
	ramp := min(n/10, sampleRate/200)
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = math.Min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / sampleRate
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*spec.frequencyHz*t) * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * sampleRate))
}
