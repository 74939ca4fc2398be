package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openclaw/planweave/internal/classify"
	"github.com/openclaw/planweave/internal/llm"
	"github.com/openclaw/planweave/internal/plan"
	"github.com/openclaw/planweave/internal/sandbox"
)

const goodCode = "```python\n" + `def run():
    total = sum(range(10))
    print("total:", total)

run()` + "\n```"

// fakeExecutor serves queued results; when the queue empties the last result
// repeats. A nil queue means every call errors (infrastructure failure).
type fakeExecutor struct {
	results []sandbox.Result
	calls   int
	infra   error
}

func (f *fakeExecutor) Execute(ctx context.Context, code string, bindings map[string]string) (sandbox.Result, error) {
	f.calls++
	if f.infra != nil {
		return sandbox.Result{}, f.infra
	}
	if len(f.results) == 0 {
		return sandbox.Result{Success: true, ExitStatus: sandbox.ExitOK}, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res, nil
}

func okSyntax(ctx context.Context, interpreter, code string) (string, error) {
	return "", nil
}

func newTestLoop(gen llm.Generator, exec sandbox.Executor, maxIter int) *Loop {
	return NewLoop(gen, exec, Options{
		MaxIterations: maxIter,
		SyntaxCheck:   okSyntax,
	})
}

func keyErrorResult() sandbox.Result {
	return sandbox.Result{
		Success:    false,
		Stderr:     "Traceback (most recent call last):\n  ...\nKeyError: 'revenue'",
		ExitStatus: sandbox.ExitError,
	}
}

func TestLoop_SuccessFirstIteration(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{results: []sandbox.Result{
		{Success: true, Stdout: "total: 45\n", ExitStatus: sandbox.ExitOK},
	}}

	out, err := newTestLoop(gen, exec, 4).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.Status != plan.StatusSuccess || out.Iterations != 1 {
		t.Errorf("expected success in 1 iteration, got %+v", out)
	}
	if out.FinalCode == "" || !strings.Contains(out.Stdout, "total: 45") {
		t.Errorf("expected final code and stdout, got %+v", out)
	}
}

func TestLoop_UnparsableGeneratorRunsFullBudget(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("I am unable to write code today.")
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{}
	out, err := newTestLoop(gen, exec, 3).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.Status != plan.StatusFailed {
		t.Errorf("expected failed, got %s", out.Status)
	}
	if out.Iterations != 3 {
		t.Errorf("expected exactly 3 iterations, got %d", out.Iterations)
	}
	if out.Reason != ReasonBudgetExhausted {
		t.Errorf("unexpected reason %q", out.Reason)
	}
	if provider.CallCount() != 3 {
		t.Errorf("expected 3 generations, got %d", provider.CallCount())
	}
	if exec.calls != 0 {
		t.Errorf("unparsable output must never execute, got %d calls", exec.calls)
	}
	for _, rec := range out.History {
		if rec.Kind != classify.KindGenerationParse {
			t.Errorf("unexpected record kind %s", rec.Kind)
		}
	}
}

func TestLoop_RepeatedErrorStopsEarly(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{results: []sandbox.Result{keyErrorResult()}}

	out, err := newTestLoop(gen, exec, 5).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.Status != plan.StatusFailed || out.Reason != ReasonRepeatedError {
		t.Errorf("expected repeated-error failure, got %+v", out)
	}
	if out.Iterations >= 5 {
		t.Errorf("expected early stop, ran %d iterations", out.Iterations)
	}
	if out.Advice == "" {
		t.Error("expected strategy advice on repeated-error stop")
	}
}

func TestLoop_RetryPromptCarriesErrorAndHint(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{results: []sandbox.Result{
		keyErrorResult(),
		{Success: true, Stdout: "ok\n", ExitStatus: sandbox.ExitOK},
	}}

	out, err := newTestLoop(gen, exec, 4).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, []string{"age", "income"})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.Status != plan.StatusSuccess || out.Iterations != 2 {
		t.Fatalf("expected success on second iteration, got %+v", out)
	}

	req := provider.LastRequest()
	prompt := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(prompt, "KeyError") {
		t.Errorf("retry prompt should carry the error kind: %q", prompt)
	}
	if !strings.Contains(prompt, "age, income") {
		t.Errorf("retry prompt should inject known columns into the hint: %q", prompt)
	}
	if len(out.History) != 1 {
		t.Errorf("expected one error record, got %d", len(out.History))
	}
}

func TestLoop_TimeoutClassified(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{results: []sandbox.Result{
		{Success: false, Stderr: "execution timed out after 30s", ExitStatus: sandbox.ExitTimeout},
	}}

	out, err := newTestLoop(gen, exec, 2).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.Status != plan.StatusFailed {
		t.Fatalf("expected failure, got %+v", out)
	}
	if out.History[0].Kind != classify.KindTimeout {
		t.Errorf("expected timeout record, got %s", out.History[0].Kind)
	}
}

func TestLoop_ClassifiesMarkerOnStdout(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	// the marker lands on stdout while stderr carries only a warning
	exec := &fakeExecutor{results: []sandbox.Result{
		{
			Success:    false,
			Stdout:     "caught KeyError: 'region' while scoring\n",
			Stderr:     "RuntimeWarning: overflow encountered in exp\n",
			ExitStatus: sandbox.ExitError,
		},
		{Success: true, Stdout: "ok\n", ExitStatus: sandbox.ExitOK},
	}}

	out, err := newTestLoop(gen, exec, 4).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if len(out.History) != 1 || out.History[0].Kind != classify.KindKeyError {
		t.Errorf("expected KeyError from stdout, got %+v", out.History)
	}
}

func TestLoop_MissingEntryPointIsStructuralFailure(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("```python\nx = 1\nprint('a long enough candidate without the function')\n```")
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{}
	task := &plan.TaskNode{ID: "calc", Config: map[string]any{"entry_point": "run_analysis"}}

	out, err := newTestLoop(gen, exec, 2).Run(context.Background(), task, nil, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out.Status != plan.StatusFailed {
		t.Fatalf("expected failure, got %+v", out)
	}
	if exec.calls != 0 {
		t.Error("structurally invalid code must not execute")
	}
	if !strings.Contains(out.History[0].Detail, "run_analysis") {
		t.Errorf("expected entry point in detail: %q", out.History[0].Detail)
	}
}

func TestLoop_SandboxInfraErrorIsFatal(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{infra: errors.New("cannot create temp dir")}

	_, err := newTestLoop(gen, exec, 4).Run(context.Background(),
		&plan.TaskNode{ID: "calc"}, nil, nil)
	if err == nil {
		t.Fatal("expected infrastructure error")
	}
	if exec.calls != 1 {
		t.Errorf("infrastructure failures must not be retried, got %d calls", exec.calls)
	}
}

func TestLoop_PromptForbidsRecreatingBindings(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(goodCode)
	gen := llm.NewChatGenerator(provider, "")

	exec := &fakeExecutor{}
	_, err := newTestLoop(gen, exec, 1).Run(context.Background(),
		&plan.TaskNode{ID: "calc", InputVariables: []string{"df"}},
		map[string]string{"df": "outputs/load_results.csv"}, nil)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	req := provider.LastRequest()
	prompt := req.Messages[len(req.Messages)-1].Content
	if !strings.Contains(prompt, "df") || !strings.Contains(prompt, "outputs/load_results.csv") {
		t.Errorf("prompt should describe bindings: %q", prompt)
	}
	if !strings.Contains(prompt, "never recreate") {
		t.Errorf("prompt should forbid recreating bindings: %q", prompt)
	}
}
