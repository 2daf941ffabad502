// Package tracing sets up the OpenTelemetry tracer provider used by the graph
// manager. With tracing disabled a no-op tracer is handed out, so callers
// never need to check whether spans are being recorded.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted in Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterFile   = "file"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const defaultServiceName = "workgraph"

// Config configures tracing.
type Config struct {
	// Enabled switches between the SDK provider and a no-op tracer.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Exporter is one of none, file, stdout or otlp.
	Exporter string `mapstructure:"exporter" yaml:"exporter"`
	// FilePath receives JSON spans for the file exporter.
	FilePath     string  `mapstructure:"file_path" yaml:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
}

// DefaultConfig returns tracing disabled, ready to be switched to stdout.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Exporter:     ExporterStdout,
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  defaultServiceName,
	}
}

// Provider owns the tracer provider and whatever the exporter writes to.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	closer   io.Closer
}

// NewProvider builds a provider from cfg and installs it as the global
// OpenTelemetry provider when tracing is enabled.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(defaultServiceName)}, nil
	}

	exporter, closer, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Provider{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		closer:   closer,
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, io.Closer, error) {
	switch cfg.Exporter {
	case ExporterNone, "":
		return nil, nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil, nil
	case ExporterFile:
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("file_path is required for the file exporter")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create trace directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("create file exporter: %w", err)
		}
		return exp, f, nil
	case ExporterOTLP:
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exp, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

// Tracer returns the tracer spans should be started from.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool { return p.provider != nil }

// Shutdown flushes pending spans and closes the trace file, if any.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	err := p.provider.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
