package observability

import (
	"github.com/smallbiznis/mealsub/internal/observability/logger"
	"github.com/smallbiznis/mealsub/internal/observability/metrics"
	"github.com/smallbiznis/mealsub/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module gives every binary a logger, a tracer provider, the meter provider
// behind payment and subscription instruments, and the sweeper collectors.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(c Config) logger.Config {
			return logger.Config{
				ServiceName: c.Service.Name,
				Environment: c.Service.Environment,
				Version:     c.Service.Version,
				Level:       c.Log.Level,
				Format:      c.Log.Format,
				Debug:       c.Debug(),
			}
		},
		logger.New,
		func(c Config) tracing.Config {
			return tracing.Config{
				Enabled:          c.Otel.Enabled,
				ServiceName:      c.Service.Name,
				ServiceVersion:   c.Service.Version,
				Environment:      c.Service.Environment,
				ExporterEndpoint: c.Otel.Endpoint,
				ExporterProtocol: c.Otel.Protocol,
				SamplingRatio:    c.Otel.SampleRatio,
			}
		},
		tracing.NewProvider,
		func(c Config) metrics.Config {
			return metrics.Config{
				Enabled:          c.Otel.Enabled,
				ExporterEndpoint: c.Otel.Endpoint,
				ExporterProtocol: c.Otel.Protocol,
				ServiceName:      c.Service.Name,
				Environment:      c.Service.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
	),
	fx.Invoke(
		func(*sdktrace.TracerProvider) {},
		metrics.SweeperWithConfig,
	),
)

// HTTPModule is only installed by binaries that serve HTTP.
var HTTPModule = fx.Module("observability.http",
	fx.Provide(metrics.NewHTTPMetrics),
)
