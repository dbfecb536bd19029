package observability

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"jan-server/services/chat-api/internal/config"
)

const metricExportInterval = 30 * time.Second

// Shutdown flushes and stops the telemetry providers.
type Shutdown func(ctx context.Context) error

// Setup installs the global tracer and meter providers. Without OTEL_ENABLED
// and an endpoint the providers record locally and export nothing, so spans
// still carry valid ids for log correlation.
func Setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Shutdown, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("chat.lock_backend", cfg.LockBackend),
			attribute.String("chat.notify_backend", cfg.NotifyBackend),
		),
	)
	if err != nil {
		return nil, err
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.EnableTracing && cfg.OTLPEndpoint != "" {
		target, err := parseEndpoint(cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		traceExporter, err := otlptracehttp.New(ctx, target.traceOptions()...)
		if err != nil {
			return nil, err
		}
		metricExporter, err := otlpmetrichttp.New(ctx, target.metricOptions()...)
		if err != nil {
			_ = traceExporter.Shutdown(ctx)
			return nil, err
		}
		traceOpts = append(traceOpts,
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		)
		metricOpts = append(metricOpts,
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricExportInterval))),
		)
		log.Info().Str("endpoint", target.host).Bool("insecure", target.insecure).Msg("otlp export enabled")
	} else {
		log.Info().Msg("otlp export disabled")
	}

	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	meterProvider := sdkmetric.NewMeterProvider(metricOpts...)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
	}, nil
}

type otlpTarget struct {
	host     string
	path     string
	insecure bool
}

// parseEndpoint accepts "host:port" (plain http) or a full http(s) URL whose
// path, when present, prefixes the signal paths.
func parseEndpoint(raw string) (otlpTarget, error) {
	if !strings.Contains(raw, "://") {
		return otlpTarget{host: raw, insecure: true}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return otlpTarget{}, err
	}
	if u.Host == "" {
		return otlpTarget{}, errors.New("otlp endpoint has no host")
	}
	return otlpTarget{
		host:     u.Host,
		path:     strings.TrimSuffix(u.Path, "/"),
		insecure: u.Scheme != "https",
	}, nil
}

func (t otlpTarget) traceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(t.host)}
	if t.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(t.path+"/v1/traces"))
	}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func (t otlpTarget) metricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(t.host)}
	if t.path != "" {
		opts = append(opts, otlpmetrichttp.WithURLPath(t.path+"/v1/metrics"))
	}
	if t.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}
