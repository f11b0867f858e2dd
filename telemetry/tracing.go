// OpenTelemetry tracing support for registry operations.
package telemetry

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with registry-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include request detail in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer bound to a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode.
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// EndSpan records err (if any) and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Registration Spans ---

// RegistrationSpanOptions describes a finished register or deregister call.
type RegistrationSpanOptions struct {
	AgentID  string
	DID      string
	Critical bool
	Reason   string // deregistration reason; only included if debug=true
}

// StartRegistrationSpan starts a span for a registry mutation.
func (t *Tracer) StartRegistrationSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "registration."+op, trace.WithSpanKind(trace.SpanKindInternal))
}

// EndRegistrationSpan ends a registration span with attributes.
func (t *Tracer) EndRegistrationSpan(span trace.Span, opts RegistrationSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("ans.agent_id", opts.AgentID),
		attribute.Bool("ans.critical", opts.Critical),
	}
	if opts.DID != "" {
		attrs = append(attrs, attribute.String("ans.did", opts.DID))
	}
	if t.debug && opts.Reason != "" {
		attrs = append(attrs, attribute.String("ans.reason", truncate(opts.Reason, 500)))
	}
	span.SetAttributes(attrs...)
	EndSpan(span, err)
}

// --- Lookup Spans ---

// LookupSpanOptions describes a finished lookup.
type LookupSpanOptions struct {
	Capabilities []string
	NamePrefix   string // Only included if debug=true
	Limit        int
	Results      int
	StoreCalls   int
}

// StartLookupSpan starts a span for a discovery lookup.
func (t *Tracer) StartLookupSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "discovery.lookup", trace.WithSpanKind(trace.SpanKindInternal))
}

// EndLookupSpan ends a lookup span with attributes.
func (t *Tracer) EndLookupSpan(span trace.Span, opts LookupSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("lookup.limit", opts.Limit),
		attribute.Int("lookup.results", opts.Results),
		attribute.Int("lookup.store_calls", opts.StoreCalls),
	}
	if len(opts.Capabilities) > 0 {
		attrs = append(attrs, attribute.StringSlice("lookup.capabilities", opts.Capabilities))
	}
	if t.debug && opts.NamePrefix != "" {
		attrs = append(attrs, attribute.String("lookup.query", truncate(opts.NamePrefix, 200)))
	}
	span.SetAttributes(attrs...)
	EndSpan(span, err)
}

// --- Identity Spans ---

// StartResolveSpan starts a span for a DID document resolution.
func (t *Tracer) StartResolveSpan(ctx context.Context, did string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "resolver.resolve", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("ans.did", truncate(did, 200)))
	return ctx, span
}

// EndResolveSpan ends a resolve span.
func (t *Tracer) EndResolveSpan(span trace.Span, found bool, err error) {
	span.SetAttributes(attribute.Bool("resolver.found", found))
	EndSpan(span, err)
}

// StartVerifySpan starts a span for a standalone attestation check.
func (t *Tracer) StartVerifySpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "attestation.verify", trace.WithSpanKind(trace.SpanKindInternal))
	if agentID != "" {
		span.SetAttributes(attribute.String("ans.agent_id", agentID))
	}
	return ctx, span
}

// EndVerifySpan ends a verify span with the verdict.
func (t *Tracer) EndVerifySpan(span trace.Span, valid bool, keySource string, err error) {
	span.SetAttributes(
		attribute.Bool("attestation.valid", valid),
		attribute.String("attestation.key_source", keySource),
	)
	EndSpan(span, err)
}

// --- Context Propagation ---

// ExtractHTTP extracts trace context from inbound request headers.
func ExtractHTTP(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// TraceID returns the trace ID of the span in ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
