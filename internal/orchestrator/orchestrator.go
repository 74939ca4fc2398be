// Package orchestrator walks a validated task graph in dependency order,
// runs one synthesis loop per task, and maintains the run ledger and the
// write-once variable table.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openclaw/planweave/internal/eventbus"
	"github.com/openclaw/planweave/internal/ledger"
	"github.com/openclaw/planweave/internal/logging"
	"github.com/openclaw/planweave/internal/plan"
	"github.com/openclaw/planweave/internal/sandbox"
	"github.com/openclaw/planweave/internal/synth"
)

// RunInfo describes where a run came from, recorded in its ledger entry.
type RunInfo struct {
	Objective string
	PlanFile  string
}

// Orchestrator owns the task graph and the variable table for the duration
// of a run. Nothing else mutates either.
type Orchestrator struct {
	loop    *synth.Loop
	exec    sandbox.Executor
	ledger  *ledger.Manager
	planner *plan.Planner
	bus     eventbus.Publisher
	log     *logging.Logger
}

// Options tune an Orchestrator. Planner enables objective-driven runs; Bus
// and Logger default to a noop publisher and a fresh logger.
type Options struct {
	Planner *plan.Planner
	Bus     eventbus.Publisher
	Logger  *logging.Logger
}

// New creates an orchestrator.
func New(loop *synth.Loop, exec sandbox.Executor, lm *ledger.Manager, opts Options) *Orchestrator {
	if opts.Bus == nil {
		opts.Bus = eventbus.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.New().WithComponent("orchestrator")
	}
	return &Orchestrator{
		loop:    loop,
		exec:    exec,
		ledger:  lm,
		planner: opts.Planner,
		bus:     opts.Bus,
		log:     opts.Logger,
	}
}

// RunObjective plans from a free-text objective, then executes the plan. Plan
// regeneration on validation failure is bounded inside the planner.
func (o *Orchestrator) RunObjective(ctx context.Context, objective string, knownColumns []string) (*ledger.Run, error) {
	if o.planner == nil {
		return nil, fmt.Errorf("no planner configured")
	}
	graph, _, err := o.planner.GeneratePlan(ctx, objective, knownColumns)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	return o.Run(ctx, graph, knownColumns, RunInfo{Objective: objective})
}

// Run validates the graph and drives every task to a terminal status. The
// returned ledger run always holds one record per task, so the caller can
// reconstruct why anything failed without re-running. The error return is
// for planning failures and infrastructure failures only.
func (o *Orchestrator) Run(ctx context.Context, graph *plan.TaskGraph, knownColumns []string, info RunInfo) (*ledger.Run, error) {
	start := time.Now()

	run, err := o.ledger.Create(info.Objective, info.PlanFile)
	if err != nil {
		return nil, fmt.Errorf("create run ledger: %w", err)
	}

	ctx, span := o.startRunSpan(ctx, run.ID, len(graph.Tasks))
	defer span.End()

	log := o.log.WithRunID(run.ID)

	res := plan.Validate(graph, knownColumns)
	if !res.OK {
		o.ledger.AddEvent(run.ID, ledger.Event{
			Type:    ledger.EventValidation,
			Content: strings.Join(res.Diagnostics, "; "),
		})
		log.ValidationFailed(res.Diagnostics)
		err := fmt.Errorf("plan validation failed: %s", strings.Join(res.Diagnostics, "; "))
		o.ledger.Fail(run.ID, err.Error())
		o.endRunSpan(span, ledger.StatusFailed, err)
		failed, _ := o.ledger.Get(run.ID)
		return failed, err
	}

	o.ledger.AddEvent(run.ID, ledger.Event{
		Type:    ledger.EventPlan,
		Content: strings.Join(res.Order, " -> "),
	})
	log.ExecutionStart(info.PlanFile, len(graph.Tasks))
	o.bus.Publish("run_start", map[string]any{"run_id": run.ID, "tasks": len(graph.Tasks)})

	statuses := make(map[string]plan.Status, len(graph.Tasks))
	variables := make(map[string]string)
	failedCount := 0

	for _, id := range res.Order {
		if err := ctx.Err(); err != nil {
			o.ledger.Fail(run.ID, err.Error())
			o.endRunSpan(span, ledger.StatusFailed, err)
			return nil, err
		}

		task := graph.Node(id)

		if blockedBy := o.blockingDependency(task, statuses); blockedBy != "" {
			statuses[id] = plan.StatusBlocked
			reason := fmt.Sprintf("blocked by failed dependency %s", blockedBy)
			o.ledger.RecordTask(run.ID, ledger.TaskRecord{
				TaskID: id,
				Status: plan.StatusBlocked,
				Reason: reason,
			})
			o.ledger.AddEvent(run.ID, ledger.Event{Type: ledger.EventTaskEnd, Task: id, Content: reason})
			o.bus.Publish("task_blocked", map[string]any{"run_id": run.ID, "task": id, "blocked_by": blockedBy})
			log.TaskComplete(id, string(plan.StatusBlocked), 0, 0)
			continue
		}

		bindings := make(map[string]string, len(task.InputVariables))
		for _, name := range task.InputVariables {
			bindings[name] = variables[name]
		}

		o.ledger.AddEvent(run.ID, ledger.Event{Type: ledger.EventTaskStart, Task: id})
		o.bus.Publish("task_start", map[string]any{"run_id": run.ID, "task": id})

		taskCtx, taskSpan := o.startTaskSpan(ctx, task)
		taskStart := time.Now()
		outcome, err := o.loop.Run(taskCtx, task, bindings, knownColumns)
		if err != nil {
			// infrastructure failure; the run cannot continue
			o.endTaskSpan(taskSpan, "", err)
			o.ledger.Fail(run.ID, err.Error())
			o.endRunSpan(span, ledger.StatusFailed, err)
			return nil, err
		}
		o.endTaskSpan(taskSpan, string(outcome.Status), nil)

		statuses[id] = outcome.Status
		// one record per failed iteration; a clean success leaves no history
		for i, attempt := range outcome.History {
			o.ledger.AddEvent(run.ID, ledger.Event{
				Type:      ledger.EventAttempt,
				Task:      id,
				Iteration: i + 1,
				Kind:      string(attempt.Kind),
				Error:     attempt.Detail,
			})
		}
		rec := ledger.TaskRecord{
			TaskID:     id,
			Status:     outcome.Status,
			Iterations: outcome.Iterations,
			Reason:     outcome.Reason,
			Advice:     outcome.Advice,
			History:    outcome.History,
		}

		if outcome.Status == plan.StatusSuccess {
			rec.Artifacts = make(map[string]string, len(task.OutputVariables))
			for _, name := range task.OutputVariables {
				path := plan.ArtifactPath(id, name)
				if _, exists := variables[name]; exists {
					// write-once: the first producer wins
					log.Warn("variable_already_produced", map[string]interface{}{"variable": name, "task": id})
					continue
				}
				rec.Artifacts[name] = path
				variables[name] = path
			}
		} else {
			failedCount++
		}

		o.ledger.RecordTask(run.ID, rec)
		o.ledger.AddEvent(run.ID, ledger.Event{
			Type:       ledger.EventTaskEnd,
			Task:       id,
			Iteration:  outcome.Iterations,
			Content:    string(outcome.Status),
			Error:      outcome.Reason,
			DurationMs: time.Since(taskStart).Milliseconds(),
		})
		o.bus.Publish("task_end", map[string]any{
			"run_id": run.ID, "task": id,
			"status": string(outcome.Status), "iterations": outcome.Iterations,
		})

		if r, ok := o.exec.(sandbox.Resettable); ok {
			if err := r.Reset(); err != nil {
				log.Warn("sandbox_reset_failed", map[string]interface{}{"task": id, "error": err.Error()})
			}
		}
	}

	status := ledger.StatusComplete
	if failedCount > 0 {
		status = ledger.StatusFailed
		o.ledger.Fail(run.ID, fmt.Sprintf("%d task(s) did not succeed", failedCount))
	} else {
		o.ledger.Complete(run.ID)
	}
	o.ledger.AddEvent(run.ID, ledger.Event{
		Type:       ledger.EventRunEnd,
		Content:    status,
		DurationMs: time.Since(start).Milliseconds(),
	})
	o.bus.Publish("run_end", map[string]any{"run_id": run.ID, "status": status})
	log.ExecutionComplete(info.PlanFile, time.Since(start), status)
	o.endRunSpan(span, status, nil)

	return o.ledger.Get(run.ID)
}

// blockingDependency returns the id of a dependency that did not succeed, or
// empty when the task may run. Blocking is transitive because a blocked
// dependency is itself not successful.
func (o *Orchestrator) blockingDependency(task *plan.TaskNode, statuses map[string]plan.Status) string {
	for _, dep := range task.Dependencies {
		if statuses[dep] != plan.StatusSuccess {
			return dep
		}
	}
	return ""
}
