package main

import (
	"context"
	"errors"

	"github.com/blueberrycongee/sfnodes"
	"github.com/blueberrycongee/sfnodes/internal/config"
	"github.com/blueberrycongee/sfnodes/internal/observability"
)

// telemetry bundles the OpenTelemetry providers of one process.
type telemetry struct {
	traces  *observability.TracerProvider
	metrics *observability.MeterProvider
	logs    *observability.LogsProvider
}

func exporterConfig(endpoint, protocol string, insecure bool, headers map[string]string) observability.ExporterConfig {
	// Validate has already rejected unknown protocols.
	proto, _ := observability.ParseProtocol(protocol)
	return observability.ExporterConfig{
		Endpoint: endpoint,
		Protocol: proto,
		Insecure: insecure,
		Headers:  headers,
	}
}

func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry, error) {
	var (
		tel telemetry
		err error
	)

	tel.traces, err = observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ExporterConfig: exporterConfig(cfg.Tracing.Endpoint, cfg.Tracing.Protocol, cfg.Tracing.Insecure, cfg.Tracing.Headers),
		ServiceName:    cfg.Tracing.ServiceName,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	m := cfg.OTelMetrics
	tel.metrics, err = observability.InitMeter(ctx, observability.MeterConfig{
		Enabled:        m.Enabled,
		ExporterConfig: exporterConfig(m.Endpoint, m.Protocol, m.Insecure, m.Headers),
		ServiceName:    cfg.Tracing.ServiceName,
		ExportInterval: m.ExportInterval,
	})
	if err != nil {
		_ = tel.shutdown(ctx)
		return nil, err
	}

	l := cfg.OTelLogs
	tel.logs, err = observability.InitLogs(ctx, observability.LogsConfig{
		Enabled:        l.Enabled,
		ExporterConfig: exporterConfig(l.Endpoint, l.Protocol, l.Insecure, l.Headers),
		ServiceName:    cfg.Tracing.ServiceName,
	})
	if err != nil {
		_ = tel.shutdown(ctx)
		return nil, err
	}

	return &tel, nil
}

// clientOptions returns the client options wiring the providers in.
// A nil telemetry leaves the client on the global providers.
func (t *telemetry) clientOptions() []sfnodes.Option {
	if t == nil {
		return nil
	}
	var opts []sfnodes.Option
	if t.traces != nil {
		opts = append(opts, sfnodes.WithTracer(t.traces.Tracer()))
	}
	if t.metrics != nil {
		opts = append(opts, sfnodes.WithMeter(t.metrics.Meter()))
	}
	if t.logs != nil {
		opts = append(opts, sfnodes.WithEventLogger(t.logs.Logger()))
	}
	return opts
}

func (t *telemetry) shutdown(ctx context.Context) error {
	var errs []error
	if t.traces != nil {
		errs = append(errs, t.traces.Shutdown(ctx))
	}
	if t.metrics != nil {
		errs = append(errs, t.metrics.Shutdown(ctx))
	}
	if t.logs != nil {
		errs = append(errs, t.logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
