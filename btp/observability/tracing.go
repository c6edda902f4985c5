package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mattertools/btp-session/btp/session"
)

// TracedEngine wraps a session.Engine with OpenTelemetry spans around its
// two entry points, attaching the buffer's byte count as a span attribute
// and recording any returned error on the span. It is a
// decorator rather than a change to Engine itself, the same way the teacher
// injects an optional scout.Reporter into service.go instead of hardwiring
// telemetry into connection handling.
type TracedEngine struct {
	*session.Engine
	tracer trace.Tracer
}

// NewTracedEngine wraps e. A nil tracer falls back to the OTel no-op tracer.
func NewTracedEngine(e *session.Engine, tracer trace.Tracer) *TracedEngine {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("btp-session")
	}
	return &TracedEngine{Engine: e, tracer: tracer}
}

func (t *TracedEngine) HandleIncomingBLEData(ctx context.Context, data []byte) error {
	ctx, span := t.tracer.Start(ctx, "btp.HandleIncomingBLEData")
	defer span.End()
	span.SetAttributes(attribute.Int("btp.bytes", len(data)))
	err := t.Engine.HandleIncomingBLEData(ctx, data)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (t *TracedEngine) SendMatterMessage(ctx context.Context, msg []byte) error {
	ctx, span := t.tracer.Start(ctx, "btp.SendMatterMessage")
	defer span.End()
	span.SetAttributes(attribute.Int("btp.bytes", len(msg)))
	err := t.Engine.SendMatterMessage(ctx, msg)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
