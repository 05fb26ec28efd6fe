package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	charges     metric.Int64Counter
	refunds     metric.Int64Counter
	transitions metric.Int64Counter
	events      metric.Int64Counter
	chargeTime  metric.Float64Histogram
}

// NewProvider installs the global meter provider. With OTEL disabled the
// instruments are still created against a no-op provider, so call sites never
// check for nil.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		otel.SetMeterProvider(noop.NewMeterProvider())
		return otel.GetMeterProvider(), nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Info("otlp metrics export enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "mealsub"
	}
	meter := provider.Meter(name)

	charges, err := meter.Int64Counter("mealsub_payment_charges_total")
	if err != nil {
		return nil, err
	}
	refunds, err := meter.Int64Counter("mealsub_payment_refunds_total")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("mealsub_subscription_transitions_total")
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter("mealsub_events_published_total")
	if err != nil {
		return nil, err
	}
	chargeTime, err := meter.Float64Histogram("mealsub_processor_call_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		charges:     charges,
		refunds:     refunds,
		transitions: transitions,
		events:      events,
		chargeTime:  chargeTime,
	}, nil
}

// RecordCharge counts a charge attempt by payment method and outcome.
func (m *Metrics) RecordCharge(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("payment_method", strings.TrimSpace(method)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.charges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRefund(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.refunds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransition counts a subscription state change.
func (m *Metrics) RecordTransition(ctx context.Context, kind, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("subscription_kind", kind),
		attribute.String("from", from),
		attribute.String("to", to),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordEvent(ctx context.Context, eventType string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", outcome),
	)
	m.events.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObserveProcessorCall records payment processor latency.
func (m *Metrics) ObserveProcessorCall(ctx context.Context, method string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_method", strings.TrimSpace(method)))
	m.chargeTime.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"payment_method":    {},
	"outcome":           {},
	"subscription_kind": {},
	"from":              {},
	"to":                {},
	"event_type":        {},
	"route":             {},
	"status_code":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
