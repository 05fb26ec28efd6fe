package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("payment_method", "sandbox"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "completed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "payment_method" && attrs[1].Key != "payment_method" {
		t.Fatalf("expected payment_method to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordCharge(context.Background(), "sandbox", "completed")
	m.RecordTransition(context.Background(), "single", "PENDING", "ACTIVE")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "mealsub"}, noop.NewMeterProvider())
	require.NoError(t, err)

	m.RecordCharge(context.Background(), "sandbox", "failed")
	m.RecordRefund(context.Background(), "completed")
	m.RecordEvent(context.Background(), "payment.completed", true)
}
