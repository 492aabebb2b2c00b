package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrTier         = "socon.tier"
	AttrConfigLabel  = "socon.config.label"
	AttrConfigName   = "socon.config.name"
	AttrManager      = "socon.manager"
	AttrHook         = "socon.hook"
	AttrCommand      = "socon.command"
	AttrProject      = "socon.project"
	AttrInvocationID = "socon.invocation_id"
	AttrInstalled    = "socon.installed"
	AttrFailures     = "socon.failures"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanCoreSetup    = "registry.setup"
	SpanPopulate     = "registry.populate"
	SpanLoadManagers = "registry.load_managers"
	SpanFindAll      = "manager.find_all"
	SpanFindHooks    = "manager.find_hooks"
	SpanSearchHook   = "manager.search_hook"
	SpanExecute      = "command.execute"
	SpanRunCommand   = "command.run"
)

// Start opens a span on the globally installed provider. Until NewProvider
// installs an SDK provider this is a no-op.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
