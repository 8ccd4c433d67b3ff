package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

// Span attribute keys emitted by the OTel sink.
const (
	attrRunID     = "workflow.run_id"
	attrWorkflow  = "workflow.name"
	attrExp       = "workflow.experiment"
	attrNodeID    = "workflow.node_id"
	attrStatus    = "workflow.node_status"
	attrAttempts  = "workflow.node_attempts"
	attrDuration  = "workflow.duration_ms"
	attrTokensIn  = "llm.tokens.input"
	attrTokensOut = "llm.tokens.output"
	attrCostUSD   = "llm.cost_usd"
)

// OTelSink exports run and node telemetry as OpenTelemetry traces:
// one span per run, one child span per node, metrics as span attributes
// and prompt/response artifacts as span events.
type OTelSink struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	mu   sync.Mutex
	runs map[string]runSpan
}

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

// NewSink builds a sink from the observability config. Exporter "none"
// (or a nil config) yields a NoopSink; "stdout" prints spans to stdout;
// "otlp" ships them to the tracking_uri collector over HTTP.
func NewSink(cfg *config.ObservabilityConfig) (Sink, error) {
	if cfg == nil || cfg.Exporter == "" || cfg.Exporter == "none" {
		return NewNoopSink(), nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpointURL(cfg.TrackingURI))
	default:
		return nil, &errors.ConfigError{
			Key:    "observability.exporter",
			Reason: "unsupported exporter " + cfg.Exporter,
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating trace exporter")
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return &OTelSink{
		provider: provider,
		tracer:   provider.Tracer("ensemble"),
		runs:     make(map[string]runSpan),
	}, nil
}

// StartRun opens the run span. It stays open until EndRun.
func (s *OTelSink) StartRun(ctx context.Context, info RunInfo) {
	spanCtx, span := s.tracer.Start(ctx, "workflow.run",
		trace.WithTimestamp(info.Start),
		trace.WithAttributes(
			attribute.String(attrRunID, info.RunID),
			attribute.String(attrWorkflow, info.Workflow),
			attribute.String(attrExp, info.Experiment),
		))

	s.mu.Lock()
	s.runs[info.RunID] = runSpan{ctx: spanCtx, span: span}
	s.mu.Unlock()
}

// EndRun closes the run span with the final status.
func (s *OTelSink) EndRun(ctx context.Context, runID string, err error) {
	s.mu.Lock()
	rs, ok := s.runs[runID]
	delete(s.runs, runID)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err != nil {
		rs.span.SetStatus(codes.Error, err.Error())
	} else {
		rs.span.SetStatus(codes.Ok, "")
	}
	rs.span.End()
}

// RecordNode emits one child span per node execution, carrying duration,
// token counts, and estimated cost as attributes. Prompt and response
// bodies, when present, are attached as span events.
func (s *OTelSink) RecordNode(ctx context.Context, rec NodeRecord) {
	s.mu.Lock()
	rs, ok := s.runs[rec.RunID]
	s.mu.Unlock()

	parent := ctx
	if ok {
		parent = rs.ctx
	}

	_, span := s.tracer.Start(parent, "workflow.node."+rec.NodeID,
		trace.WithTimestamp(rec.Start),
		trace.WithAttributes(
			attribute.String(attrRunID, rec.RunID),
			attribute.String(attrNodeID, rec.NodeID),
			attribute.String(attrStatus, rec.Status),
			attribute.Int(attrAttempts, rec.Attempts),
			attribute.Int64(attrDuration, rec.Duration.Milliseconds()),
			attribute.Int(attrTokensIn, rec.Usage.InputTokens),
			attribute.Int(attrTokensOut, rec.Usage.OutputTokens),
			attribute.Float64(attrCostUSD, rec.CostUSD),
		))

	if rec.Prompt != "" {
		span.AddEvent("prompt", trace.WithAttributes(attribute.String("body", rec.Prompt)))
	}
	if rec.Response != "" {
		span.AddEvent("response", trace.WithAttributes(attribute.String("body", rec.Response)))
	}
	if rec.Error != "" {
		span.SetStatus(codes.Error, rec.Error)
	}

	span.End(trace.WithTimestamp(rec.Start.Add(rec.Duration)))
}

// Shutdown flushes pending spans and stops the tracer provider.
func (s *OTelSink) Shutdown(ctx context.Context) error {
	return s.provider.Shutdown(ctx)
}
