// Package synth drives the per-task generate, check, execute, repair cycle.
//
// The loop is a state machine over an explicit LoopState value. State is
// threaded and returned, never mutated on a shared object, so independent
// tasks could run loops concurrently without locking.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/planweave/internal/classify"
	"github.com/openclaw/planweave/internal/extract"
	"github.com/openclaw/planweave/internal/llm"
	"github.com/openclaw/planweave/internal/logging"
	"github.com/openclaw/planweave/internal/plan"
	"github.com/openclaw/planweave/internal/sandbox"
)

// DefaultMaxIterations bounds generation attempts per task.
const DefaultMaxIterations = 4

// minCodeLength rejects trivially short candidates before execution.
const minCodeLength = 50

// Phase is a state of the synthesis loop.
type Phase string

const (
	PhaseDrafting       Phase = "drafting"
	PhaseStaticChecking Phase = "static_checking"
	PhaseExecuting      Phase = "executing"
	PhaseSuccess        Phase = "success"
	PhaseFailed         Phase = "failed"
)

// Terminal failure reasons.
const (
	ReasonRepeatedError   = "repeated error, no progress"
	ReasonBudgetExhausted = "iteration budget exhausted"
)

// LoopState is the loop's full state between transitions.
type LoopState struct {
	Phase     Phase
	Iteration int
	Code      string
	History   []classify.Record
}

// Outcome is the terminal result of one task's loop.
type Outcome struct {
	TaskID     string            `json:"task_id"`
	Status     plan.Status       `json:"status"`
	FinalCode  string            `json:"final_code,omitempty"`
	Iterations int               `json:"iterations"`
	Reason     string            `json:"reason,omitempty"`
	Advice     string            `json:"advice,omitempty"`
	Stdout     string            `json:"stdout,omitempty"`
	History    []classify.Record `json:"history,omitempty"`
}

// Loop runs synthesis for single tasks. One Loop may serve many tasks in
// sequence; it holds no per-task state.
type Loop struct {
	gen             llm.Generator
	exec            sandbox.Executor
	interpreter     string
	maxIterations   int
	repeatThreshold int
	checkSyntax     func(ctx context.Context, interpreter, code string) (string, error)
	log             *logging.Logger
}

// Options tune a Loop. Zero values select defaults.
type Options struct {
	Interpreter     string
	MaxIterations   int
	RepeatThreshold int
	Logger          *logging.Logger

	// SyntaxCheck overrides the interpreter syntax probe. Tests use this to
	// avoid spawning an interpreter.
	SyntaxCheck func(ctx context.Context, interpreter, code string) (string, error)
}

// NewLoop creates a synthesis loop driver.
func NewLoop(gen llm.Generator, exec sandbox.Executor, opts Options) *Loop {
	if opts.Interpreter == "" {
		opts.Interpreter = "python3"
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.RepeatThreshold <= 0 {
		opts.RepeatThreshold = classify.DefaultRepeatThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logging.New().WithComponent("synth")
	}
	if opts.SyntaxCheck == nil {
		opts.SyntaxCheck = sandbox.CheckSyntax
	}
	return &Loop{
		gen:             gen,
		exec:            exec,
		interpreter:     opts.Interpreter,
		maxIterations:   opts.MaxIterations,
		repeatThreshold: opts.RepeatThreshold,
		checkSyntax:     opts.SyntaxCheck,
		log:             opts.Logger,
	}
}

// Run drives one task to a terminal status. bindings maps the task's input
// variables to artifact paths already produced by its dependencies. The loop
// terminates in at most the configured number of iterations regardless of
// generator behavior. The returned error is reserved for infrastructure
// failures; a task that merely cannot be synthesized comes back as a Failed
// outcome.
func (l *Loop) Run(ctx context.Context, task *plan.TaskNode, bindings map[string]string, knownColumns []string) (Outcome, error) {
	start := time.Now()
	l.log.TaskStart(task.ID)

	state := LoopState{Phase: PhaseDrafting}

	for state.Iteration < l.maxIterations {
		state.Iteration++

		code, rec, err := l.draft(ctx, task, bindings, knownColumns, state)
		if err != nil {
			return Outcome{}, fmt.Errorf("generate code for task %s: %w", task.ID, err)
		}
		if rec != nil {
			l.log.AttemptResult(task.ID, state.Iteration, string(rec.Kind), fmt.Errorf("%s", rec.Detail))
			if out, done := l.recordFailure(task, &state, *rec, false); done {
				l.log.TaskComplete(task.ID, string(out.Status), out.Iterations, time.Since(start))
				return out, nil
			}
			continue
		}
		state.Code = code

		state.Phase = PhaseStaticChecking
		detail, err := l.staticCheck(ctx, task, code)
		if err != nil {
			return Outcome{}, err
		}
		if detail != "" {
			rec := classify.Record{Kind: classify.KindSyntaxError, Detail: detail, Raw: detail}
			l.log.AttemptResult(task.ID, state.Iteration, string(rec.Kind), fmt.Errorf("%s", detail))
			if out, done := l.recordFailure(task, &state, rec, false); done {
				l.log.TaskComplete(task.ID, string(out.Status), out.Iterations, time.Since(start))
				return out, nil
			}
			continue
		}

		state.Phase = PhaseExecuting
		execStart := time.Now()
		res, err := l.exec.Execute(ctx, code, bindings)
		if err != nil {
			// infrastructure failure, fatal and never retried
			return Outcome{}, fmt.Errorf("execute task %s: %w", task.ID, err)
		}
		l.log.SandboxResult(task.ID, string(res.ExitStatus), time.Since(execStart))

		if res.Success {
			state.Phase = PhaseSuccess
			out := Outcome{
				TaskID:     task.ID,
				Status:     plan.StatusSuccess,
				FinalCode:  code,
				Iterations: state.Iteration,
				Stdout:     res.Stdout,
				History:    state.History,
			}
			l.log.TaskComplete(task.ID, string(plan.StatusSuccess), state.Iteration, time.Since(start))
			return out, nil
		}

		rec2 := l.classifyResult(res)
		l.log.AttemptResult(task.ID, state.Iteration, string(rec2.Kind), fmt.Errorf("%s", rec2.Detail))
		if out, done := l.recordFailure(task, &state, rec2, true); done {
			l.log.TaskComplete(task.ID, string(out.Status), out.Iterations, time.Since(start))
			return out, nil
		}
	}

	out := l.failedOutcome(task, state, ReasonBudgetExhausted)
	l.log.TaskComplete(task.ID, string(plan.StatusFailed), state.Iteration, time.Since(start))
	return out, nil
}

// draft asks the generator for candidate code. A parse failure comes back as
// a record and consumes an iteration; a transport failure is an error.
func (l *Loop) draft(ctx context.Context, task *plan.TaskNode, bindings map[string]string, knownColumns []string, state LoopState) (string, *classify.Record, error) {
	state.Phase = PhaseDrafting
	prompt := l.buildPrompt(task, bindings, knownColumns, state)

	raw, err := l.gen.Generate(ctx, prompt)
	if err != nil {
		return "", nil, err
	}

	res, err := extract.Code(raw, "python")
	if err != nil {
		detail := "response contained no recognizable code block"
		return "", &classify.Record{Kind: classify.KindGenerationParse, Detail: detail, Raw: truncate(raw, 200)}, nil
	}
	return res.Value, nil, nil
}

// staticCheck runs the structural checks that need no execution: candidate
// length, the declared entry point marker, and an interpreter syntax probe.
// The returned detail is empty when all checks pass.
func (l *Loop) staticCheck(ctx context.Context, task *plan.TaskNode, code string) (string, error) {
	if len(strings.TrimSpace(code)) < minCodeLength {
		return "structural failure: candidate code is trivially short", nil
	}
	if entry := entryPoint(task); entry != "" {
		if !strings.Contains(code, "def "+entry) {
			return fmt.Sprintf("structural failure: missing entry point def %s", entry), nil
		}
	}
	return l.checkSyntax(ctx, l.interpreter, code)
}

// classifyResult maps an execution result to an error record. A timeout is
// classified directly; everything else goes through marker matching on the
// combined output.
func (l *Loop) classifyResult(res sandbox.Result) classify.Record {
	if res.ExitStatus == sandbox.ExitTimeout {
		return classify.Record{Kind: classify.KindTimeout, Detail: res.Stderr, Raw: res.Stderr}
	}
	// stdout first so lastLine stays the traceback's error line when a
	// stderr traceback is present
	combined := strings.TrimSpace(res.Stdout + "\n" + res.Stderr)
	return classify.Classify(combined)
}

// recordFailure appends the record and decides whether the loop is done.
// checkRepeat is set only for execution failures; parse and static-check
// failures consume iterations but never trip the repeated-error rule, so a
// generator that stays unparsable still gets its full budget.
func (l *Loop) recordFailure(task *plan.TaskNode, state *LoopState, rec classify.Record, checkRepeat bool) (Outcome, bool) {
	state.History = append(state.History, rec)

	if checkRepeat && classify.IsRepeated(state.History, rec.Kind, l.repeatThreshold) {
		return l.failedOutcome(task, *state, ReasonRepeatedError), true
	}
	if state.Iteration >= l.maxIterations {
		return l.failedOutcome(task, *state, ReasonBudgetExhausted), true
	}
	state.Phase = PhaseDrafting
	return Outcome{}, false
}

func (l *Loop) failedOutcome(task *plan.TaskNode, state LoopState, reason string) Outcome {
	out := Outcome{
		TaskID:     task.ID,
		Status:     plan.StatusFailed,
		FinalCode:  state.Code,
		Iterations: state.Iteration,
		Reason:     reason,
		History:    state.History,
	}
	if reason == ReasonRepeatedError && len(state.History) > 0 {
		out.Advice = classify.StrategyAdvice(state.History[len(state.History)-1].Kind)
	}
	return out
}

// buildPrompt assembles the generation context: objective, config, bindings
// that must not be recreated, schema columns, and on retries the latest
// classified error with its repair hint.
func (l *Loop) buildPrompt(task *plan.TaskNode, bindings map[string]string, knownColumns []string, state LoopState) string {
	var b strings.Builder
	b.WriteString("Write a complete python program for the following step.\n\n")
	fmt.Fprintf(&b, "Step id: %s\n", task.ID)
	if task.Kind != "" {
		fmt.Fprintf(&b, "Step kind: %s\n", task.Kind)
	}
	if task.Objective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", task.Objective)
	}
	if entry := entryPoint(task); entry != "" {
		fmt.Fprintf(&b, "The program must define a function named %s and call it.\n", entry)
	}
	if len(task.Config) > 0 {
		if cfg, err := json.Marshal(task.Config); err == nil {
			fmt.Fprintf(&b, "Step configuration: %s\n", cfg)
		}
	}

	if len(bindings) > 0 {
		b.WriteString("\nThese variables are already defined; use them, never recreate them:\n")
		names := make([]string, 0, len(bindings))
		for name := range bindings {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: path to the artifact %q\n", name, bindings[name])
		}
	}

	if len(knownColumns) > 0 {
		fmt.Fprintf(&b, "\nAvailable data columns: %s\n", strings.Join(knownColumns, ", "))
	}

	if len(task.OutputVariables) > 0 {
		b.WriteString("\nOutputs to produce:\n")
		for _, name := range task.OutputVariables {
			fmt.Fprintf(&b, "- write %s to %s\n", name, plan.ArtifactPath(task.ID, name))
		}
	}

	if len(state.History) > 0 {
		last := state.History[len(state.History)-1]
		fmt.Fprintf(&b, "\nYour previous attempt failed with %s: %s\n", last.Kind, last.Detail)
		if hint := classify.Hint(last.Kind, knownColumns); hint != "" {
			fmt.Fprintf(&b, "Repair guidance: %s\n", hint)
		}
	}

	b.WriteString("\nRespond with a single fenced python code block.")
	return b.String()
}

// entryPoint returns the function name the task's config demands, if any.
func entryPoint(task *plan.TaskNode) string {
	if task.Config == nil {
		return ""
	}
	if v, ok := task.Config["entry_point"].(string); ok {
		return v
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
