package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/staffcache/observe/exporters"
)

// InstrumentationName is the scope name of the tracer and meter.
const InstrumentationName = "github.com/jonwraymond/staffcache"

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string        `yaml:"service_name" env:"SERVICE_NAME"`
	Version     string        `yaml:"version" env:"VERSION"`
	Environment string        `yaml:"environment" env:"ENVIRONMENT"` // deployment.environment
	Tracing     TracingConfig `yaml:"tracing" env:"TRACING"`
	Metrics     MetricsConfig `yaml:"metrics" env:"METRICS"`
	Logging     LoggingConfig `yaml:"logging" env:"LOGGING"`
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool    `yaml:"enabled" env:"ENABLED"`
	Exporter  string  `yaml:"exporter" env:"EXPORTER"`     // otlp|jaeger|stdout|none
	SamplePct float64 `yaml:"sample_pct" env:"SAMPLE_PCT"` // 0.0-1.0
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Exporter string `yaml:"exporter" env:"EXPORTER"` // otlp|prometheus|stdout|none
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Level   string `yaml:"level" env:"LEVEL"` // debug|info|warn|error
}

var (
	tracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}
	metricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}
	logLevels        = []string{"debug", "info", "warn", "error", ""}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports every problem in the configuration. Disabled sections are
// not checked.
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceName == "" {
		errs = append(errs, ErrMissingServiceName)
	}
	if c.Tracing.Enabled {
		if !oneOf(c.Tracing.Exporter, tracingExporters) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter))
		}
		if c.Tracing.SamplePct < MinSamplePct || c.Tracing.SamplePct > MaxSamplePct {
			errs = append(errs, fmt.Errorf("%w, got: %f", ErrInvalidSamplePct, c.Tracing.SamplePct))
		}
	}
	if c.Metrics.Enabled && !oneOf(c.Metrics.Exporter, metricsExporters) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter))
	}
	if c.Logging.Enabled && !oneOf(c.Logging.Level, logLevels) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level))
	}
	return errors.Join(errs...)
}

// Observer provides access to telemetry primitives.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Shutdown must honor cancellation/deadlines.
// - Errors: Shutdown is idempotent; later calls return the first call's result.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Shutdown flushes and stops all telemetry providers.
	Shutdown(ctx context.Context) error
}

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
}

// Field is one structured log field.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver validates cfg and builds the enabled providers. Enabled
// providers are also installed as the otel globals.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	obs := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		meter:  noop.NewMeterProvider().Meter(InstrumentationName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		if obs.tp, err = newTracerProvider(ctx, cfg.Tracing, res); err != nil {
			return nil, err
		}
		otel.SetTracerProvider(obs.tp)
		obs.tracer = obs.tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.Version))
	}

	if cfg.Metrics.Enabled {
		if obs.mp, err = newMeterProvider(ctx, cfg.Metrics, res); err != nil {
			_ = obs.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(obs.mp)
		obs.meter = obs.mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(cfg.Version))
	}

	if cfg.Logging.Enabled {
		fields := []Field{F("service", cfg.ServiceName)}
		if cfg.Environment != "" {
			fields = append(fields, F("env", cfg.Environment))
		}
		obs.logger = NewLogger(cfg.Logging.Level).With(fields...)
	}

	return obs, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(cfg.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("observe: create resource: %w", err)
	}
	return res, nil
}

// sampler maps a sample fraction to a parent-based sampler.
func sampler(pct float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case pct >= 1.0:
		root = sdktrace.AlwaysSample()
	case pct <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(pct)
	}
	return sdktrace.ParentBased(root)
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := exporters.NewTracingExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("observe: tracing: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplePct)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("observe: metrics: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }

func (o *observer) Meter() metric.Meter { return o.meter }

func (o *observer) Logger() Logger { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error
		if o.tp != nil {
			if err := o.tp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}
		if o.mp != nil {
			if err := o.mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
			}
		}
		if z, ok := o.logger.(*zapLogger); ok {
			_ = z.z.Sync()
		}
		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
