// Package telemetry exports session metrics through OpenTelemetry and a
// Prometheus scrape endpoint.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const meterName = "github.com/rbright/dictum"

// Runtime holds the meter provider and its scrape handler.
type Runtime struct {
	Provider *sdkmetric.MeterProvider
	Handler  http.Handler

	logger *slog.Logger
}

// Setup builds a meter provider backed by a private Prometheus registry and
// installs it as the global provider.
func Setup(ctx context.Context, serviceName, serviceVersion string, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", "error", err.Error())
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(provider)
		return &Runtime{Provider: provider, logger: logger}, nil
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &Runtime{
		Provider: provider,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		logger:   logger,
	}, nil
}

// Meter returns the dictum meter from the runtime provider.
func (r *Runtime) Meter() metric.Meter {
	return r.Provider.Meter(meterName)
}

// Serve exposes /metrics on listen until ctx ends. An empty listen address
// or a missing handler disables the endpoint.
func (r *Runtime) Serve(ctx context.Context, listen string) error {
	listen = strings.TrimSpace(listen)
	if listen == "" || r.Handler == nil {
		return nil
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	r.logger.Info("metrics endpoint listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	return r.Provider.Shutdown(ctx)
}
