package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_Disabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	defer tp.Shutdown(context.Background())

	if tp.Tracer() == nil {
		t.Error("expected non-nil tracer even when disabled")
	}
}

func TestStartItemSpan_RecordsAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer(TracerName)

	_, span := StartItemSpan(context.Background(), tracer, ItemSpanAttributes{
		BatchID:  "b-1",
		Item:     2,
		Resource: "vision",
		Model:    "Qwen/Qwen2.5-VL-72B-Instruct",
	})
	RecordPayloadSize(span, 2048)
	RecordUsage(span, 10, 20, "stop")
	RecordError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := ended[0]
	if got.Name() != "sfnodes.vision" {
		t.Errorf("unexpected span name %q", got.Name())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status().Code)
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["sfnodes.item"].AsInt64() != 2 {
		t.Errorf("expected item attribute 2, got %v", attrs["sfnodes.item"])
	}
	if attrs["gen_ai.request.model"].AsString() != "Qwen/Qwen2.5-VL-72B-Instruct" {
		t.Errorf("unexpected model attribute %v", attrs["gen_ai.request.model"])
	}
	if attrs["sfnodes.request.payload_bytes"].AsInt64() != 2048 {
		t.Errorf("unexpected payload attribute %v", attrs["sfnodes.request.payload_bytes"])
	}
	if attrs["gen_ai.usage.output_tokens"].AsInt64() != 20 {
		t.Errorf("unexpected usage attribute %v", attrs["gen_ai.usage.output_tokens"])
	}
}
