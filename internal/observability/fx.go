package observability

import (
	"github.com/smallbiznis/ambassador/internal/observability/logger"
	"github.com/smallbiznis/ambassador/internal/observability/metrics"
	"github.com/smallbiznis/ambassador/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(
		func(cfg Config) logger.Config { return cfg.Logger() },
		logger.New,
	),
	fx.Provide(
		func(cfg Config) tracing.Config { return cfg.Tracing() },
		tracing.NewProvider,
	),
	fx.Provide(
		func(cfg Config) metrics.Config { return cfg.Metrics() },
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(announce),
)

// announce forces the tracer provider and the scheduler registry to exist
// before the first request or tick.
func announce(cfg Config, _ *sdktrace.TracerProvider, metricsCfg metrics.Config, log *zap.Logger) {
	metrics.SchedulerWithConfig(metricsCfg)
	log.Info("observability ready",
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("otel_enabled", cfg.OtelEnabled),
		zap.String("otel_protocol", cfg.OtelExporterProtocol),
		zap.Float64("otel_sampling_ratio", cfg.OtelSamplingRatio),
	)
}
