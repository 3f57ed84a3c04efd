package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns Events into OpenTelemetry spans: one span per event,
// started and ended immediately since an Event describes a point in time
// rather than a duration.
//
// Span name is event.Msg ("node_start", "node_done", "node_failed"); span
// attributes carry run_id/step/node_id plus every Meta entry. A Meta
// "error" string sets the span's status to Error.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter constructs an OTelEmitter using tracer (e.g.
// otel.Tracer("agentflow")).
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit starts and immediately ends a span for event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	o.addStandardAttributes(span, event)
	o.addMetadataAttributes(span, event.Meta)
	if err, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, err)
		span.RecordError(fmt.Errorf("%s", err))
	}
}

// EmitBatch creates one span per event, in order.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.addStandardAttributes(span, event)
		o.addMetadataAttributes(span, event.Meta)
		if err, ok := event.Meta["error"].(string); ok {
			span.SetStatus(codes.Error, err)
			span.RecordError(fmt.Errorf("%s", err))
		}
		span.End()
	}
	return nil
}

// Flush force-flushes the global TracerProvider, if it supports flushing.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()

	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) addStandardAttributes(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("agentflow.run_id", event.RunID),
		attribute.Int("agentflow.step", event.Step),
		attribute.String("agentflow.node_id", event.NodeID),
	)
}

// addMetadataAttributes converts event metadata to span attributes, mapping
// a few well-known keys to namespaced attribute names.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	if meta == nil {
		return
	}

	for key, value := range meta {
		if key == "attempt" {
			continue // handled by addRetryAttribute
		}

		attrKey := key
		switch key {
		case "tokens_in":
			attrKey = "agentflow.llm.tokens_in"
		case "tokens_out":
			attrKey = "agentflow.llm.tokens_out"
		case "cost_usd":
			attrKey = "agentflow.llm.cost_usd"
		case "latency_ms":
			attrKey = "agentflow.node.latency_ms"
		case "model":
			attrKey = "agentflow.llm.model"
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}

	o.addRetryAttribute(span, meta)
}

// addRetryAttribute records which retry attempt produced event, when set.
func (o *OTelEmitter) addRetryAttribute(span trace.Span, meta map[string]interface{}) {
	if attempt, ok := meta["attempt"].(int); ok {
		span.SetAttributes(attribute.Int("agentflow.attempt", attempt))
	} else if attempt, ok := meta["attempt"].(int64); ok {
		span.SetAttributes(attribute.Int64("agentflow.attempt", attempt))
	}
}
