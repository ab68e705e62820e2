// Package otel publishes tsauth metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter and each histogram bucket an
// Int64ObservableGauge. One callback reads the engine snapshot per
// collection. NewMeterProvider builds an OTLP/HTTP push provider for
// processes that do not bring their own.
package otel
