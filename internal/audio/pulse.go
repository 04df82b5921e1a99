package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("dictum"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, classifyOpenError(fmt.Errorf("connect pulse server: %w", err))
	}
	return client, nil
}

// ListPulseInputs returns Pulse input sources with default/availability metadata.
func ListPulseInputs(_ context.Context) ([]Input, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	inputs := make([]Input, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		inputs = append(inputs, Input{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return inputs, nil
}

// PulseSource is a corkable Pulse record stream bound to one input.
type PulseSource struct {
	input  Input
	client *pulse.Client
	stream *pulse.RecordStream
}

// OpenPulse selects an input and prepares a corked 16kHz mono record stream.
func OpenPulse(ctx context.Context, inputPref, fallbackPref string, onSamples func([]int16)) (*PulseSource, Selection, error) {
	inputs, err := ListPulseInputs(ctx)
	if err != nil {
		return nil, Selection{}, err
	}
	selection, err := selectInput(inputs, inputPref, fallbackPref)
	if err != nil {
		return nil, Selection{}, err
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, Selection{}, err
	}

	source, err := client.SourceByID(selection.Input.ID)
	if err != nil {
		client.Close()
		return nil, Selection{}, fmt.Errorf("%w: resolve source %q: %v", ErrDeviceUnavailable, selection.Input.ID, err)
	}

	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) > 0 {
			onSamples(buf)
		}
		return len(buf), nil
	})
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(FrameSamples*2),
		pulse.RecordMediaName("dictum recording"),
	)
	if err != nil {
		client.Close()
		return nil, Selection{}, fmt.Errorf("%w: create pulse record stream: %v", ErrDeviceUnavailable, err)
	}

	return &PulseSource{input: selection.Input, client: client, stream: stream}, selection, nil
}

func (p *PulseSource) Name() string {
	return p.input.ID
}

// Start uncorks the stream.
func (p *PulseSource) Start() error {
	p.stream.Start()
	return nil
}

// Stop corks the stream; the server-side stream stays allocated.
func (p *PulseSource) Stop() error {
	p.stream.Stop()
	return nil
}

func (p *PulseSource) Close() error {
	p.stream.Close()
	p.client.Close()
	return nil
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
