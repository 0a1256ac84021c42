package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider    *metric.MeterProvider
	meter            otelmetric.Meter
	pipelineCounter  otelmetric.Int64Counter
	pipelineDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	pipelineCounter, _ := meter.Int64Counter(
		"pipeline.messages.processed",
		otelmetric.WithDescription("Number of inbound messages run through the response pipeline"),
	)

	pipelineDuration, _ := meter.Float64Histogram(
		"pipeline.duration",
		otelmetric.WithDescription("Response pipeline processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:    provider,
		meter:            meter,
		pipelineCounter:  pipelineCounter,
		pipelineDuration: pipelineDuration,
	}
}

func (o *Observability) RecordPipelineProcessed(ctx context.Context, outcome string) {
	if o.pipelineCounter != nil {
		o.pipelineCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) RecordPipelineDuration(ctx context.Context, duration time.Duration, outcome string) {
	if o.pipelineDuration != nil {
		o.pipelineDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
