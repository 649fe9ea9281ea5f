package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"loan-lifecycle/internal/common/logger"
)

type Config struct {
	ServiceName    string
	JaegerEndpoint string
}

// Observability owns the otel meter and tracer providers. The zero value is
// safe to use: every Record call is a no-op and spans come from the global
// (no-op) tracer.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	jobCounter   otelmetric.Int64Counter
	jobDuration  otelmetric.Float64Histogram
	transitions  otelmetric.Int64Counter
	riskScores   otelmetric.Int64Histogram
	reminderRuns otelmetric.Float64Histogram
}

func New(cfg Config, log logger.Logger) *Observability {
	o := &Observability{tracer: otel.Tracer(cfg.ServiceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)
		o.registerInstruments(o.meterProvider.Meter(cfg.ServiceName))
	}

	if cfg.JaegerEndpoint != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
		if err != nil {
			log.Warn("failed to create jaeger exporter, tracing disabled", map[string]interface{}{"error": err})
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exp),
				sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
			)
			otel.SetTracerProvider(o.tracerProvider)
			o.tracer = o.tracerProvider.Tracer(cfg.ServiceName)
		}
	}

	return o
}

func (o *Observability) registerInstruments(meter otelmetric.Meter) {
	o.jobCounter, _ = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.transitions, _ = meter.Int64Counter(
		"loan.transitions",
		otelmetric.WithDescription("Committed loan status transitions"),
	)
	o.riskScores, _ = meter.Int64Histogram(
		"loan.risk_score",
		otelmetric.WithDescription("Risk scores assigned at submission"),
	)
	o.reminderRuns, _ = meter.Float64Histogram(
		"loan.reminder_run.duration",
		otelmetric.WithDescription("Reminder scheduler run duration"),
		otelmetric.WithUnit("ms"),
	)
}

// StartSpan starts a span on the service tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer("loan-lifecycle")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordTransition(ctx context.Context, from, to, actor string) {
	if o.transitions != nil {
		o.transitions.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.String("actor", actor),
		))
	}
}

func (o *Observability) RecordRiskScore(ctx context.Context, score int, band string) {
	if o.riskScores != nil {
		o.riskScores.Record(ctx, int64(score), otelmetric.WithAttributes(attribute.String("band", band)))
	}
}

func (o *Observability) RecordReminderRun(ctx context.Context, duration time.Duration, sent, failed int) {
	if o.reminderRuns != nil {
		o.reminderRuns.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.Int("sent", sent),
			attribute.Int("failed", failed),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
