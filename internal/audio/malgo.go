//go:build !linux

package audio

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

// ListMalgoInputs returns capture devices reported by miniaudio.
func ListMalgoInputs(_ context.Context) ([]Input, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyOpenError(fmt.Errorf("init audio context: %w", err))
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	inputs := make([]Input, 0, len(devices))
	for _, d := range devices {
		inputs = append(inputs, Input{
			ID:          hex.EncodeToString(d.ID[:]),
			Description: d.Name(),
			State:       "idle",
			Available:   true,
			Default:     d.IsDefault != 0,
		})
	}
	return inputs, nil
}

// MalgoSource is a miniaudio capture device. Stop halts the device but keeps
// the context and device initialized.
type MalgoSource struct {
	input  Input
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// OpenMalgo selects an input and initializes a stopped s16 capture device.
func OpenMalgo(ctx context.Context, inputPref, fallbackPref string, onSamples func([]int16)) (*MalgoSource, Selection, error) {
	inputs, err := ListMalgoInputs(ctx)
	if err != nil {
		return nil, Selection{}, err
	}
	selection, err := selectInput(inputs, inputPref, fallbackPref)
	if err != nil {
		return nil, Selection{}, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, Selection{}, classifyOpenError(fmt.Errorf("init audio context: %w", err))
	}
	release := func() {
		_ = mctx.Uninit()
		mctx.Free()
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.PeriodSizeInFrames = FrameSamples

	idBytes, err := hex.DecodeString(selection.Input.ID)
	if err != nil {
		release()
		return nil, Selection{}, fmt.Errorf("%w: invalid device id %q: %v", ErrDeviceUnavailable, selection.Input.ID, err)
	}
	var devID malgo.DeviceID
	copy(devID[:], idBytes)
	cfg.Capture.DeviceID = devID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			if len(data) > 0 {
				onSamples(DecodePCM(data))
			}
		},
	}
	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		release()
		return nil, Selection{}, classifyOpenError(fmt.Errorf("init capture device: %w", err))
	}

	return &MalgoSource{input: selection.Input, ctx: mctx, device: device}, selection, nil
}

func (m *MalgoSource) Name() string {
	return m.input.Description
}

func (m *MalgoSource) Start() error {
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	return nil
}

func (m *MalgoSource) Stop() error {
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("stop capture device: %w", err)
	}
	return nil
}

func (m *MalgoSource) Close() error {
	m.device.Uninit()
	_ = m.ctx.Uninit()
	m.ctx.Free()
	return nil
}
