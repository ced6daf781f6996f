package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

// LogsConfig configures OTLP export of item events.
type LogsConfig struct {
	Enabled bool
	ExporterConfig
	ServiceName string
}

// LogsProvider wraps the OpenTelemetry logger provider.
type LogsProvider struct {
	provider *sdklog.LoggerProvider
	logger   log.Logger
}

// InitLogs initializes OTLP log export. When disabled the returned provider
// hands out the global (no-op) logger.
func InitLogs(ctx context.Context, cfg LogsConfig) (*LogsProvider, error) {
	if !cfg.Enabled {
		return &LogsProvider{logger: global.GetLoggerProvider().Logger(TracerName)}, nil
	}

	exporter, err := newLogExporter(ctx, cfg.ExporterConfig)
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(provider)

	return &LogsProvider{
		provider: provider,
		logger:   provider.Logger(TracerName),
	}, nil
}

// Logger returns the logger instance.
func (p *LogsProvider) Logger() log.Logger {
	return p.logger
}

// Shutdown flushes pending records and stops the exporter.
func (p *LogsProvider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

func newLogExporter(ctx context.Context, cfg ExporterConfig) (sdklog.Exporter, error) {
	if cfg.Protocol == ProtocolHTTP {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
		}
		return otlploghttp.New(ctx, opts...)
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	return otlploggrpc.New(ctx, opts...)
}

// ItemEvent is the outcome of one node item.
type ItemEvent struct {
	BatchID  string
	Item     int
	Resource string
	Model    string
	Duration time.Duration
	Err      error
	ErrKind  string
}

// EmitItemEvent emits ev as an "sfnodes.item.success" or
// "sfnodes.item.failure" record, correlated with the span in ctx.
// The error text goes through the default redactor.
func EmitItemEvent(ctx context.Context, logger log.Logger, ev ItemEvent) {
	if logger == nil {
		return
	}

	var record log.Record
	record.SetTimestamp(time.Now())
	record.AddAttributes(
		log.String("gen_ai.system", "siliconflow"),
		log.String("gen_ai.operation.name", ev.Resource),
		log.String("gen_ai.request.model", ev.Model),
		log.String("sfnodes.batch_id", ev.BatchID),
		log.Int("sfnodes.item", ev.Item),
		log.Int64("sfnodes.duration_ms", ev.Duration.Milliseconds()),
	)

	if ev.Err != nil {
		record.SetSeverity(log.SeverityWarn)
		record.SetBody(log.StringValue("sfnodes.item.failure"))
		record.AddAttributes(log.String("error.message", defaultRedactor.Redact(ev.Err.Error())))
		if ev.ErrKind != "" {
			record.AddAttributes(log.String("error.type", ev.ErrKind))
		}
	} else {
		record.SetSeverity(log.SeverityInfo)
		record.SetBody(log.StringValue("sfnodes.item.success"))
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		record.AddAttributes(
			log.String("trace_id", sc.TraceID().String()),
			log.String("span_id", sc.SpanID().String()),
		)
	}

	logger.Emit(ctx, record)
}
