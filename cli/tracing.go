package cli

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logSpanProcessor writes finished spans to the debug log.
type logSpanProcessor struct {
	logger *log.Logger
}

func (p logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !p.logger.IsLevelEnabled(log.DebugLevel) {
		return
	}
	fields := log.Fields{
		"span":        s.Name(),
		"trace_id":    s.SpanContext().TraceID().String(),
		"duration_ms": durationToMillis(s.EndTime().Sub(s.StartTime())),
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.AsInterface()
	}
	if s.Status().Code == codes.Error {
		fields["error"] = s.Status().Description
	}
	p.logger.WithFields(fields).Debug("span.end")
}

func (p logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p logSpanProcessor) ForceFlush(context.Context) error { return nil }

// setupTracing installs a global tracer provider that reports spans through
// the logger. The returned function flushes and uninstalls it.
func setupTracing(logger *log.Logger) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(logSpanProcessor{logger: logger}))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		defer otel.SetTracerProvider(prev)
		return tp.Shutdown(ctx)
	}
}
