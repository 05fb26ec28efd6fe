package events

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/mealsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mealsub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Publisher hands a single event to a transport.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Emitter is what domain services depend on. It never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, evts ...Event)
}

const defaultPublishTimeout = 5 * time.Second

type Dispatcher struct {
	publisher Publisher
	log       *zap.Logger
	metrics   *obsmetrics.Metrics
	timeout   time.Duration
}

type DispatcherParam struct {
	fx.In

	Publisher Publisher
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func NewDispatcher(p DispatcherParam) *Dispatcher {
	return &Dispatcher{
		publisher: p.Publisher,
		log:       p.Log.Named("events"),
		metrics:   p.Metrics,
		timeout:   defaultPublishTimeout,
	}
}

func (d *Dispatcher) Emit(ctx context.Context, evts ...Event) {
	if d == nil || d.publisher == nil {
		return
	}
	// Emission happens after commit; a cancelled request context must not drop it.
	base := context.WithoutCancel(ctx)
	for _, evt := range evts {
		pubCtx, cancel := context.WithTimeout(base, d.timeout)
		err := d.publisher.Publish(pubCtx, evt)
		cancel()

		d.metrics.RecordEvent(base, string(evt.Type), err == nil)
		if err != nil {
			obslogger.WithContext(base, d.log).Warn("event.publish.failed",
				zap.String("event_id", evt.ID),
				zap.String("event_type", string(evt.Type)),
				zap.String("subscription_id", evt.SubscriptionID),
				zap.Error(err),
			)
		}
	}
}

// LogPublisher writes events to the structured log. It is the sink used when
// no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log")}
}

func (p *LogPublisher) Publish(ctx context.Context, evt Event) error {
	obslogger.WithContext(ctx, p.log).Info("event.published",
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.Time("occurred_at", evt.OccurredAt),
		zap.String("user_id", evt.UserID),
		zap.String("subscription_id", evt.SubscriptionID),
		zap.String("subscription_kind", evt.SubscriptionKind),
		zap.String("payment_id", evt.PaymentID),
		zap.String("amount", evt.Amount),
		zap.String("status", evt.Status),
	)
	return nil
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, ...Event) {}
