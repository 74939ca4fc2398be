package orchestrator

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/openclaw/planweave/internal/classify"
	"github.com/openclaw/planweave/internal/ledger"
	"github.com/openclaw/planweave/internal/llm"
	"github.com/openclaw/planweave/internal/logging"
	"github.com/openclaw/planweave/internal/plan"
	"github.com/openclaw/planweave/internal/sandbox"
	"github.com/openclaw/planweave/internal/synth"
)

const goodCode = "```python\n" + `def run():
    value = sum(range(100))
    print("value:", value)

run()` + "\n```"

// scriptedExecutor serves queued results in order; when the queue empties the
// last result repeats.
type scriptedExecutor struct {
	results  []sandbox.Result
	bindings []map[string]string
}

func (f *scriptedExecutor) Execute(ctx context.Context, code string, bindings map[string]string) (sandbox.Result, error) {
	f.bindings = append(f.bindings, bindings)
	if len(f.results) == 0 {
		return sandbox.Result{Success: true, ExitStatus: sandbox.ExitOK}, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res, nil
}

type capturingBus struct {
	kinds []string
}

func (b *capturingBus) Publish(kind string, payload any) error {
	b.kinds = append(b.kinds, kind)
	return nil
}
func (b *capturingBus) Close() {}

func okSyntax(ctx context.Context, interpreter, code string) (string, error) {
	return "", nil
}

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestOrchestrator(t *testing.T, exec sandbox.Executor, maxIter int, opts Options) *Orchestrator {
	t.Helper()
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}

	loop := synth.NewLoop(gen, exec, synth.Options{
		MaxIterations: maxIter,
		SyntaxCheck:   okSyntax,
		Logger:        opts.Logger,
	})
	lm := ledger.NewManager(ledger.NewFileStore(t.TempDir()))
	return New(loop, exec, lm, opts)
}

func keyErrorResult() sandbox.Result {
	return sandbox.Result{
		Success:    false,
		Stderr:     "Traceback (most recent call last):\nKeyError: 'region'",
		ExitStatus: sandbox.ExitError,
	}
}

func successResult() sandbox.Result {
	return sandbox.Result{Success: true, Stdout: "done\n", ExitStatus: sandbox.ExitOK}
}

func TestRun_SuccessWithRetry(t *testing.T) {
	// T1 succeeds immediately; T2 fails once with KeyError, then succeeds
	// with feedback.
	exec := &scriptedExecutor{results: []sandbox.Result{
		successResult(),
		keyErrorResult(),
		successResult(),
	}}
	bus := &capturingBus{}
	o := newTestOrchestrator(t, exec, 4, Options{Bus: bus})

	graph := &plan.TaskGraph{Tasks: []plan.TaskNode{
		{ID: "T1", OutputVariables: []string{"x"}},
		{ID: "T2", InputVariables: []string{"x"}, OutputVariables: []string{"y"}, Dependencies: []string{"T1"}},
	}}

	run, err := o.Run(context.Background(), graph, nil, RunInfo{PlanFile: "plan.json"})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	t1 := run.Task("T1")
	if t1 == nil || t1.Status != plan.StatusSuccess || t1.Iterations != 1 {
		t.Errorf("unexpected T1 record: %+v", t1)
	}
	t2 := run.Task("T2")
	if t2 == nil || t2.Status != plan.StatusSuccess || t2.Iterations != 2 {
		t.Errorf("unexpected T2 record: %+v", t2)
	}
	if len(t2.History) != 1 || t2.History[0].Kind != classify.KindKeyError {
		t.Errorf("unexpected T2 history: %+v", t2.History)
	}

	var attempts []ledger.Event
	for _, ev := range run.Events {
		if ev.Type == ledger.EventAttempt {
			attempts = append(attempts, ev)
		}
	}
	if len(attempts) != 1 {
		t.Fatalf("expected one attempt event for T2's failure, got %+v", attempts)
	}
	if attempts[0].Task != "T2" || attempts[0].Kind != string(classify.KindKeyError) || attempts[0].Iteration != 1 {
		t.Errorf("unexpected attempt event: %+v", attempts[0])
	}

	if run.Variables["y"] != plan.ArtifactPath("T2", "y") {
		t.Errorf("variable y not registered: %v", run.Variables)
	}
	if run.Status != ledger.StatusComplete {
		t.Errorf("expected complete run, got %s", run.Status)
	}

	// T2's attempts must see x resolved to T1's artifact
	last := exec.bindings[len(exec.bindings)-1]
	if last["x"] != plan.ArtifactPath("T1", "x") {
		t.Errorf("T2 bindings missing x: %v", last)
	}

	joined := strings.Join(bus.kinds, ",")
	for _, want := range []string{"run_start", "task_start", "task_end", "run_end"} {
		if !strings.Contains(joined, want) {
			t.Errorf("bus missing %s event: %v", want, bus.kinds)
		}
	}
}

func TestRun_FailedTaskBlocksDependentsTransitively(t *testing.T) {
	exec := &scriptedExecutor{results: []sandbox.Result{keyErrorResult()}}
	o := newTestOrchestrator(t, exec, 3, Options{})

	graph := &plan.TaskGraph{Tasks: []plan.TaskNode{
		{ID: "T1", OutputVariables: []string{"x"}},
		{ID: "T2", InputVariables: []string{"x"}, OutputVariables: []string{"y"}, Dependencies: []string{"T1"}},
		{ID: "T3", InputVariables: []string{"y"}, Dependencies: []string{"T2"}},
	}}

	run, err := o.Run(context.Background(), graph, nil, RunInfo{})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	if run.Task("T1").Status != plan.StatusFailed {
		t.Errorf("expected T1 failed, got %+v", run.Task("T1"))
	}
	for _, id := range []string{"T2", "T3"} {
		rec := run.Task(id)
		if rec == nil || rec.Status != plan.StatusBlocked {
			t.Errorf("expected %s blocked, got %+v", id, rec)
		}
		if rec != nil && rec.Iterations != 0 {
			t.Errorf("blocked task %s must never run, got %d iterations", id, rec.Iterations)
		}
	}
	if run.Status != ledger.StatusFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}
	if _, ok := run.Variables["y"]; ok {
		t.Error("blocked task must not publish variables")
	}
}

func TestRun_InvalidPlanFailsWithoutExecuting(t *testing.T) {
	exec := &scriptedExecutor{}
	o := newTestOrchestrator(t, exec, 3, Options{})

	graph := &plan.TaskGraph{Tasks: []plan.TaskNode{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}}

	run, err := o.Run(context.Background(), graph, nil, RunInfo{})
	if err == nil {
		t.Fatal("expected planning error")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("unexpected error: %v", err)
	}
	if run == nil || run.Status != ledger.StatusFailed {
		t.Errorf("expected failed run record, got %+v", run)
	}
	if len(exec.bindings) != 0 {
		t.Error("nothing must execute for an invalid plan")
	}
}

func TestRun_VariableTableIsWriteOnce(t *testing.T) {
	exec := &scriptedExecutor{}
	o := newTestOrchestrator(t, exec, 3, Options{})

	// both tasks claim to produce x; the first producer wins
	graph := &plan.TaskGraph{Tasks: []plan.TaskNode{
		{ID: "T1", OutputVariables: []string{"x"}},
		{ID: "T2", OutputVariables: []string{"x"}, Dependencies: []string{"T1"}},
	}}

	run, err := o.Run(context.Background(), graph, nil, RunInfo{})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if run.Variables["x"] != plan.ArtifactPath("T1", "x") {
		t.Errorf("first producer must win: %v", run.Variables)
	}
}

func TestRunObjective_PlansThenExecutes(t *testing.T) {
	planJSON := "```json\n" + `{"tasks": [
		{"id": "load", "output_variables": ["df"]},
		{"id": "calc", "input_variables": ["df"], "dependencies": ["load"]}
	]}` + "\n```"

	provider := llm.NewMockProvider()
	provider.QueueResponses(planJSON, goodCode, goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &scriptedExecutor{}
	loop := synth.NewLoop(gen, exec, synth.Options{MaxIterations: 3, SyntaxCheck: okSyntax})
	lm := ledger.NewManager(ledger.NewFileStore(t.TempDir()))
	planner := plan.NewPlanner(gen, 2, nil)
	o := New(loop, exec, lm, Options{Planner: planner})

	run, err := o.RunObjective(context.Background(), "score the customers", nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if run.Status != ledger.StatusComplete {
		t.Errorf("expected complete run, got %+v", run)
	}
	if run.Objective != "score the customers" {
		t.Errorf("objective not recorded: %q", run.Objective)
	}
	if run.Task("load") == nil || run.Task("calc") == nil {
		t.Errorf("generated tasks not recorded: %+v", run.Tasks)
	}
}

func TestRun_CancelledContextStopsBetweenTasks(t *testing.T) {
	exec := &scriptedExecutor{}
	o := newTestOrchestrator(t, exec, 3, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	graph := &plan.TaskGraph{Tasks: []plan.TaskNode{{ID: "T1"}}}
	if _, err := o.Run(ctx, graph, nil, RunInfo{}); err == nil {
		t.Fatal("expected context error")
	}
}
