package config

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/mpapenbr/simracecenter-agent-go/log"
	"github.com/mpapenbr/simracecenter-agent-go/version"
)

type Telemetry struct {
	metric *metric.MeterProvider
	trace  *trace.TracerProvider
}

// SetupTelemetry installs global meter and tracer providers. Data is sent via
// OTLP (gRPC) to TelemetryEndpoint unless TelemetryExporter is "stdout".
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "simracecenter-agent"),
			attribute.String("service.version", version.Version),
		))
	if err != nil {
		return nil, err
	}
	ret := &Telemetry{}
	if ret.metric, err = newMeterProvider(ctx, res); err != nil {
		return nil, err
	}
	if ret.trace, err = newTracerProvider(ctx, res); err != nil {
		ret.Shutdown()
		return nil, err
	}
	otel.SetMeterProvider(ret.metric)
	otel.SetTracerProvider(ret.trace)
	return ret, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*metric.MeterProvider, error) {
	var exporter metric.Exporter
	var err error
	if TelemetryExporter == "stdout" {
		exporter, err = stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	} else {
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint))
	}
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(15*time.Second))),
	), nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error
	if TelemetryExporter == "stdout" {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(TelemetryEndpoint))
	}
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
	), nil
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if t.metric != nil {
		errs = append(errs, t.metric.Shutdown(ctx))
	}
	if t.trace != nil {
		errs = append(errs, t.trace.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("telemetry shutdown", log.ErrorField(err))
	}
}
