package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterConfig configures OTLP metric export. Prometheus scraping is
// independent of it.
type MeterConfig struct {
	Enabled bool
	ExporterConfig
	ServiceName    string
	ExportInterval time.Duration
}

// MeterProvider wraps the OpenTelemetry meter provider.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
}

// InitMeter initializes OTLP metric export. When disabled the returned
// provider hands out the global (no-op) meter.
func InitMeter(ctx context.Context, cfg MeterConfig) (*MeterProvider, error) {
	if !cfg.Enabled {
		return &MeterProvider{meter: otel.Meter(TracerName)}, nil
	}

	exporter, err := newMetricExporter(ctx, cfg.ExporterConfig)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	return &MeterProvider{
		provider: provider,
		meter:    provider.Meter(TracerName),
	}, nil
}

// Meter returns the meter instance.
func (p *MeterProvider) Meter() metric.Meter {
	return p.meter
}

// Shutdown flushes pending metrics and stops the exporter.
func (p *MeterProvider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

func newMetricExporter(ctx context.Context, cfg ExporterConfig) (sdkmetric.Exporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// ItemInstruments records gen_ai client metrics for node items.
// A nil *ItemInstruments records nothing.
type ItemInstruments struct {
	duration metric.Float64Histogram
	tokens   metric.Int64Counter
	items    metric.Int64Counter
}

// NewItemInstruments creates the instruments on meter.
func NewItemInstruments(meter metric.Meter) (*ItemInstruments, error) {
	duration, err := meter.Float64Histogram(
		"gen_ai.client.operation.duration",
		metric.WithDescription("Duration of SiliconFlow API calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := meter.Int64Counter(
		"gen_ai.client.token.usage",
		metric.WithDescription("Number of tokens used"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	items, err := meter.Int64Counter(
		"sfnodes.items",
		metric.WithDescription("Node items processed"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	return &ItemInstruments{duration: duration, tokens: tokens, items: items}, nil
}

// RecordCall records the duration of one API call.
func (i *ItemInstruments) RecordCall(ctx context.Context, operation, model string, d time.Duration) {
	if i == nil {
		return
	}
	i.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("gen_ai.operation.name", operation),
		attribute.String("gen_ai.request.model", model),
	))
}

// RecordTokens records input and output token counts. Zero counts are skipped.
func (i *ItemInstruments) RecordTokens(ctx context.Context, operation, model string, input, output int) {
	if i == nil {
		return
	}
	for _, u := range []struct {
		kind  string
		count int
	}{{"input", input}, {"output", output}} {
		if u.count <= 0 {
			continue
		}
		i.tokens.Add(ctx, int64(u.count), metric.WithAttributes(
			attribute.String("gen_ai.operation.name", operation),
			attribute.String("gen_ai.request.model", model),
			attribute.String("gen_ai.token.type", u.kind),
		))
	}
}

// RecordItem counts one processed item by outcome.
func (i *ItemInstruments) RecordItem(ctx context.Context, operation, status string) {
	if i == nil {
		return
	}
	i.items.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gen_ai.operation.name", operation),
		attribute.String("status", status),
	))
}
