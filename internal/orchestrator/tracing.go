// Tracing instrumentation for the orchestrator.
package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openclaw/planweave/internal/plan"
)

// tracer resolves against whatever provider the embedding process installed;
// without one every span is a noop.
func tracer() trace.Tracer {
	return otel.Tracer("planweave/orchestrator")
}

// startRunSpan starts a span covering one full run.
func (o *Orchestrator) startRunSpan(ctx context.Context, runID string, tasks int) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.tasks", tasks),
	)
	return ctx, span
}

// endRunSpan ends the run span with outcome info.
func (o *Orchestrator) endRunSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("run.status", status))
	if err != nil {
		span.RecordError(err)
	}
}

// startTaskSpan starts a span for a task's synthesis loop.
func (o *Orchestrator) startTaskSpan(ctx context.Context, task *plan.TaskNode) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "task."+task.ID)
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.kind", task.Kind),
	)
	return ctx, span
}

// endTaskSpan ends the task span with its terminal status.
func (o *Orchestrator) endTaskSpan(span trace.Span, status string, err error) {
	if status != "" {
		span.SetAttributes(attribute.String("task.status", status))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
