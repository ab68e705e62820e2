package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ScopeName is the instrumentation scope the exporter's meter is created under.
const ScopeName = "github.com/truesplit/tsauth"

var ErrNoEndpoint = errors.New("otlp metrics endpoint is required")

// NewMeterProvider builds an SDK MeterProvider that pushes to endpoint over
// OTLP/HTTP every interval and installs it as the global provider.
//
// Callers must Shutdown the provider to flush the final export.
func NewMeterProvider(ctx context.Context, serviceName, endpoint string, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}
