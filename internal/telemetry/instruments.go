package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments are the session-level counters and histograms.
type Instruments struct {
	transitions metric.Int64Counter
	updates     metric.Int64Counter
	frames      metric.Int64Counter
	failures    metric.Int64Counter
	recorded    metric.Float64Histogram
}

func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	in := &Instruments{
		transitions: counter("dictum.session.transitions", "Session state transitions."),
		updates:     counter("dictum.asr.updates", "Recognition updates applied to the transcript."),
		frames:      counter("dictum.audio.frames", "Captured audio frames forwarded to recognition."),
		failures:    counter("dictum.session.failures", "Sessions stopped by a device or engine failure."),
	}

	recorded, err := meter.Float64Histogram(
		"dictum.session.recorded",
		metric.WithDescription("Recorded seconds per finished session."),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)
	in.recorded = recorded

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return in, nil
}

// Noop returns instruments that record nothing.
func Noop() *Instruments {
	in, _ := NewInstruments(noop.NewMeterProvider().Meter(meterName))
	return in
}

func (in *Instruments) Transition(ctx context.Context, from, to string) {
	in.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (in *Instruments) Update(ctx context.Context, final bool) {
	in.updates.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", final)))
}

func (in *Instruments) Frames(ctx context.Context, forwarded bool) {
	in.frames.Add(ctx, 1, metric.WithAttributes(attribute.Bool("forwarded", forwarded)))
}

func (in *Instruments) Failure(ctx context.Context, cause string) {
	in.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

func (in *Instruments) Recorded(ctx context.Context, seconds float64, state string) {
	in.recorded.Record(ctx, seconds, metric.WithAttributes(attribute.String("state", state)))
}
